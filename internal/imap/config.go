// Package imap polls a shared IMAP mailbox and imports what it finds.
package imap

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/robfisher/mailshare/internal/config"
)

// Config holds connection settings for an IMAP server.
type Config struct {
	Host     string
	Port     int
	TLS      bool // Implicit TLS (IMAPS, port 993)
	STARTTLS bool // STARTTLS upgrade (port 143)
	Username string
	Auth     string // config.IMAPAuthLogin or config.IMAPAuthPlain
	Mailbox  string
}

// FromConfig converts the [imap] configuration section.
func FromConfig(c config.IMAPConfig) *Config {
	mailbox := c.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Config{
		Host:     c.Host,
		Port:     c.Port,
		TLS:      c.TLS,
		STARTTLS: c.STARTTLS,
		Username: c.Username,
		Auth:     c.Auth,
		Mailbox:  mailbox,
	}
}

func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.TLS {
		return 993
	}
	return 143
}

// Addr returns the "host:port" string.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
}

// Identifier returns a canonical string like "imaps://user@host:port".
func (c *Config) Identifier() string {
	scheme := "imap"
	if c.TLS {
		scheme = "imaps"
	}
	return fmt.Sprintf("%s://%s@%s", scheme, url.PathEscape(c.Username), c.Addr())
}
