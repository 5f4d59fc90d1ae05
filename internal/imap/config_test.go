package imap

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/robfisher/mailshare/internal/config"
)

func TestConfigAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		addr string
		id   string
	}{
		{"imaps default port", Config{Host: "mail.example.com", TLS: true, Username: "share"}, "mail.example.com:993", "imaps://share@mail.example.com:993"},
		{"imap default port", Config{Host: "mail.example.com", Username: "share"}, "mail.example.com:143", "imap://share@mail.example.com:143"},
		{"explicit port", Config{Host: "localhost", Port: 1143, Username: "a b"}, "localhost:1143", "imap://a%20b@localhost:1143"},
		{"ipv6 host", Config{Host: "::1", TLS: true, Username: "u"}, "[::1]:993", "imaps://u@[::1]:993"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Addr(); got != tt.addr {
				t.Errorf("Addr() = %q, want %q", got, tt.addr)
			}
			if got := tt.cfg.Identifier(); got != tt.id {
				t.Errorf("Identifier() = %q, want %q", got, tt.id)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.IMAPConfig{Host: "h", Username: "u", Auth: config.IMAPAuthPlain})
	if got.Mailbox != "INBOX" {
		t.Errorf("Mailbox = %q, want INBOX", got.Mailbox)
	}
	if got.Auth != config.IMAPAuthPlain || got.Host != "h" || got.Username != "u" {
		t.Errorf("FromConfig() = %+v", got)
	}
}

func TestPasswordStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "credentials")
	id := "imaps://share@mail.example.com:993"

	if _, err := LoadPassword(dir, id); err == nil || !strings.Contains(err.Error(), "set-password") {
		t.Errorf("LoadPassword() before save error = %v, want hint", err)
	}
	if err := SavePassword(dir, id, "s3cret"); err != nil {
		t.Fatalf("SavePassword: %v", err)
	}
	got, err := LoadPassword(dir, id)
	if err != nil {
		t.Fatalf("LoadPassword: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("LoadPassword() = %q, want s3cret", got)
	}
	if _, err := LoadPassword(dir, "imaps://other@mail.example.com:993"); err == nil {
		t.Error("LoadPassword() for another account = nil error")
	}
}

func TestResolvePassword(t *testing.T) {
	cfg := &config.Config{
		Data: config.DataConfig{DataDir: t.TempDir()},
		IMAP: config.IMAPConfig{Host: "mail.example.com", TLS: true, Username: "share"},
	}
	if err := SavePassword(cfg.CredentialsDir(), FromConfig(cfg.IMAP).Identifier(), "stored"); err != nil {
		t.Fatalf("SavePassword: %v", err)
	}

	got, err := ResolvePassword(cfg)
	if err != nil || got != "stored" {
		t.Errorf("ResolvePassword() = %q, %v; want stored", got, err)
	}

	cfg.IMAP.Password = "inline"
	got, err = ResolvePassword(cfg)
	if err != nil || got != "inline" {
		t.Errorf("ResolvePassword() = %q, %v; want inline", got, err)
	}
}
