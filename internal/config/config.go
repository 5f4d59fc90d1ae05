// Package config handles loading and managing mailshare configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the mailshare configuration.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Server   ServerConfig   `toml:"server"`
	Search   SearchConfig   `toml:"search"`
	TagCloud TagCloudConfig `toml:"tag_cloud"`
	IMAP     IMAPConfig     `toml:"imap"`
	Log      LogConfig      `toml:"log"`
	Teams    []TeamConfig   `toml:"teams"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// ServerConfig holds HTTP server configuration. A non-loopback BindAddr
// requires APIKey unless AllowInsecure is set. EnableDelete allows deleting
// mails through the API; ResultLimit caps the mails listed per search page.
type ServerConfig struct {
	APIPort       int      `toml:"api_port"`
	BindAddr      string   `toml:"bind_addr"`
	APIKey        string   `toml:"api_key"`
	AllowInsecure bool     `toml:"allow_insecure"`
	CORSOrigins   []string `toml:"cors_origins"`
	CORSMaxAge    int      `toml:"cors_max_age"`
	EnableDelete  bool     `toml:"enable_delete"`
	ResultLimit   int      `toml:"result_limit"`
}

// SearchConfig selects how searches are executed.
type SearchConfig struct {
	Backend            string `toml:"backend"`              // "sqlite" or "index"
	IndexSchedule      string `toml:"index_schedule"`       // Cron expression for index rebuilds
	DirectoryCacheSize int    `toml:"directory_cache_size"` // Cached contact and tag names
}

// TagCloudConfig controls the per-team tag clouds on the index page.
type TagCloudConfig struct {
	CacheDir   string `toml:"cache_dir"`
	Schedule   string `toml:"schedule"`    // Cron expression for refreshing every team
	Days       int    `toml:"days"`        // Window the cloud counts tags over
	LinkDays   int    `toml:"link_days"`   // Window of the searches the cloud links to
	TopSenders int    `toml:"top_senders"` // Length of the top senders list
}

// IMAPConfig configures polling a shared mailbox for new mail. Polling is
// disabled while Host is empty. Password may be left out of the file and
// stored with `mailshare imap set-password` instead.
type IMAPConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	TLS         bool   `toml:"tls"`
	STARTTLS    bool   `toml:"starttls"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Auth        string `toml:"auth"` // "login" or "plain"
	Mailbox     string `toml:"mailbox"`
	MaxMessages int    `toml:"max_messages"` // Messages fetched per poll
	Expunge     bool   `toml:"expunge"`      // Delete messages once imported
	Schedule    string `toml:"schedule"`
}

// Enabled reports whether a server is configured.
func (c IMAPConfig) Enabled() bool {
	return c.Host != ""
}

// IMAP authentication mechanisms.
const (
	IMAPAuthLogin = "login"
	IMAPAuthPlain = "plain"
)

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// TeamConfig names a mailing-list address shown on the index page.
type TeamConfig struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
}

// Search backends.
const (
	BackendSQLite = "sqlite"
	BackendIndex  = "index"
)

// DefaultHome returns the default mailshare home directory.
// Respects MAILSHARE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILSHARE_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailshare"
	}
	return filepath.Join(home, ".mailshare")
}

// NewDefaultConfig returns a configuration with default values rooted at
// DefaultHome.
func NewDefaultConfig() *Config {
	return newDefaultConfig(DefaultHome())
}

func newDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Data: DataConfig{
			DataDir: homeDir,
		},
		Server: ServerConfig{
			APIPort:     8080,
			ResultLimit: 100,
		},
		Search: SearchConfig{
			Backend:            BackendSQLite,
			IndexSchedule:      "*/15 * * * *",
			DirectoryCacheSize: 1024,
		},
		TagCloud: TagCloudConfig{
			Schedule:   "0 * * * *",
			Days:       7,
			LinkDays:   30,
			TopSenders: 5,
		},
		IMAP: IMAPConfig{
			TLS:         true,
			Auth:        IMAPAuthLogin,
			Mailbox:     "INBOX",
			MaxMessages: 10,
			Schedule:    "*/5 * * * *",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the configuration. homeDir overrides DefaultHome when set.
// With an empty path, config.toml in the home directory is read if present;
// an explicit path must exist.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	if homeDir == "" {
		homeDir = DefaultHome()
	}
	homeDir = expandPath(homeDir)
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := newDefaultConfig(homeDir)
	cfg.ConfigPath = path

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg.finish(), nil
		}
		return nil, fmt.Errorf("config file: %w", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if msg := err.Error(); strings.Contains(msg, "escape") || strings.Contains(msg, "hexadecimal digits") {
			return nil, fmt.Errorf("decode config: %w (hint: use single quotes or forward slashes for Windows paths)", err)
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg.finish(), nil
}

func (c *Config) finish() *Config {
	c.Data.DataDir = expandPath(c.Data.DataDir)
	c.TagCloud.CacheDir = expandPath(c.TagCloud.CacheDir)
	c.Log.File = expandPath(c.Log.File)
	return c
}

func (c *Config) validate() error {
	switch c.Search.Backend {
	case BackendSQLite, BackendIndex:
	default:
		return fmt.Errorf("invalid [search] backend %q: want %q or %q", c.Search.Backend, BackendSQLite, BackendIndex)
	}
	if c.TagCloud.Days <= 0 || c.TagCloud.LinkDays <= 0 {
		return fmt.Errorf("[tag_cloud] days and link_days must be positive")
	}
	if c.IMAP.Enabled() {
		if c.IMAP.Username == "" {
			return fmt.Errorf("[imap] username is required when host is set")
		}
		switch c.IMAP.Auth {
		case IMAPAuthLogin, IMAPAuthPlain:
		default:
			return fmt.Errorf("invalid [imap] auth %q: want %q or %q", c.IMAP.Auth, IMAPAuthLogin, IMAPAuthPlain)
		}
		if c.IMAP.MaxMessages <= 0 {
			return fmt.Errorf("[imap] max_messages must be positive")
		}
	}
	for i, t := range c.Teams {
		if t.Name == "" || t.Address == "" {
			return fmt.Errorf("[[teams]] entry %d needs both name and address", i+1)
		}
	}
	return nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabaseURL != "" {
		return expandPath(c.Data.DatabaseURL)
	}
	return filepath.Join(c.Data.DataDir, "mailshare.db")
}

// TagCloudCacheDir returns the directory holding cached tag cloud HTML.
func (c *Config) TagCloudCacheDir() string {
	if c.TagCloud.CacheDir != "" {
		return c.TagCloud.CacheDir
	}
	return filepath.Join(c.Data.DataDir, "cache")
}

// CredentialsDir returns the directory holding stored IMAP passwords.
func (c *Config) CredentialsDir() string {
	return filepath.Join(c.Data.DataDir, "credentials")
}

// ValidateSecure rejects binding to a non-loopback address without an API
// key unless allow_insecure is set.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure || isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("refusing to bind to %q without [server] api_key; set api_key or allow_insecure = true", s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// expandPath expands a leading ~ or ~/ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimLeft(path[1:], `/\`))
}
