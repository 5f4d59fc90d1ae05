//go:build windows

package fileutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

func ownerOnly(perm os.FileMode) bool {
	return perm&0077 == 0
}

// restrictToCurrentUser replaces the DACL of path with one granting
// GENERIC_ALL to the current user only. Directories pass the entry on to
// their children.
func restrictToCurrentUser(path string) error {
	user, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return fmt.Errorf("fileutil: current user for %s: %w", path, err)
	}

	var inherit uint32 = windows.NO_INHERITANCE
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		inherit = windows.CONTAINER_INHERIT_ACE | windows.OBJECT_INHERIT_ACE
	}

	acl, err := windows.ACLFromEntries([]windows.EXPLICIT_ACCESS{{
		AccessPermissions: windows.GENERIC_ALL,
		AccessMode:        windows.SET_ACCESS,
		Inheritance:       inherit,
		Trustee: windows.TRUSTEE{
			TrusteeForm:  windows.TRUSTEE_IS_SID,
			TrusteeType:  windows.TRUSTEE_IS_USER,
			TrusteeValue: windows.TrusteeValueFromSID(user.User.Sid),
		},
	}}, nil)
	if err != nil {
		return fmt.Errorf("fileutil: build ACL for %s: %w", path, err)
	}

	info := windows.DACL_SECURITY_INFORMATION | windows.PROTECTED_DACL_SECURITY_INFORMATION
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.SECURITY_INFORMATION(info), nil, nil, acl, nil); err != nil {
		return fmt.Errorf("fileutil: set DACL on %s: %w", path, err)
	}
	return nil
}

// restrict applies the owner-only DACL when perm asks for it. Failures are
// logged; the file keeps its mode bits.
func restrict(path string, perm os.FileMode) {
	if !ownerOnly(perm) {
		return
	}
	if err := restrictToCurrentUser(path); err != nil {
		slog.Warn("fileutil: DACL not applied", "path", path, "error", err)
	}
}

// SecureWriteFile writes data to path and restricts owner-only files to the
// current user.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	restrict(path, perm)
	return nil
}

// SecureMkdirAll creates path and its missing parents, restricting each
// directory it creates when perm is owner-only.
func SecureMkdirAll(path string, perm os.FileMode) error {
	var created []string
	if ownerOnly(perm) {
		for p := filepath.Clean(path); ; {
			if _, err := os.Stat(p); err == nil {
				break
			}
			created = append(created, p)
			parent := filepath.Dir(p)
			if parent == p {
				break
			}
			p = parent
		}
	}
	if err := os.MkdirAll(path, perm); err != nil {
		return err
	}
	for _, dir := range created {
		restrict(dir, perm)
	}
	return nil
}
