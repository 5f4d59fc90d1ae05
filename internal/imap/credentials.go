package imap

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/fileutil"
)

type credentialsFile struct {
	Password string `json:"password"`
}

// credentialsPath returns the password file for identifier.
func credentialsPath(dir, identifier string) string {
	hash := sha256.Sum256([]byte(identifier))
	return filepath.Join(dir, fmt.Sprintf("imap_%x.json", hash[:8]))
}

// SavePassword stores the password for the account named by identifier.
func SavePassword(dir, identifier, password string) error {
	if err := fileutil.SecureMkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.Marshal(credentialsFile{Password: password})
	if err != nil {
		return err
	}
	if err := fileutil.SecureWriteFile(credentialsPath(dir, identifier), data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// LoadPassword returns the stored password for identifier.
func LoadPassword(dir, identifier string) (string, error) {
	data, err := os.ReadFile(credentialsPath(dir, identifier))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("no password stored for %s (run 'mailshare imap set-password' or set [imap] password)", identifier)
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	return creds.Password, nil
}

// ResolvePassword returns the configured password, falling back to the
// stored one.
func ResolvePassword(cfg *config.Config) (string, error) {
	if cfg.IMAP.Password != "" {
		return cfg.IMAP.Password, nil
	}
	return LoadPassword(cfg.CredentialsDir(), FromConfig(cfg.IMAP).Identifier())
}
