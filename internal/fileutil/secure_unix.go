//go:build !windows

// Package fileutil writes files and directories that may hold private mail
// data. On Windows, owner-only modes (perm&0077 == 0) also get a DACL that
// admits only the current user; elsewhere the helpers are plain os calls.
package fileutil

import "os"

// SecureWriteFile is os.WriteFile.
func SecureWriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// SecureMkdirAll is os.MkdirAll.
func SecureMkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func restrict(path string, perm os.FileMode) {}
