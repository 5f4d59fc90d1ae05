package imap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/robfisher/mailshare/internal/config"
)

// Message is one fetched message.
type Message struct {
	UID          imap.UID
	InternalDate time.Time
	Raw          []byte
}

// Option is a functional option for Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client reads and expunges messages of a single mailbox.
type Client struct {
	config   *Config
	password string
	logger   *slog.Logger

	mu       sync.Mutex
	conn     *imapclient.Client
	selected bool
	writable bool
}

// NewClient creates a new IMAP client. No connection is made until the
// first call.
func NewClient(cfg *Config, password string, opts ...Option) *Client {
	c := &Client{
		config:   cfg,
		password: password,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// connect establishes and authenticates the IMAP connection. Caller must hold mu.
func (c *Client) connect() error {
	if c.conn != nil {
		return nil
	}

	addr := c.config.Addr()
	c.logger.Debug("connecting to IMAP server", "addr", addr, "tls", c.config.TLS, "starttls", c.config.STARTTLS)

	var (
		conn *imapclient.Client
		err  error
	)
	opts := &imapclient.Options{}
	switch {
	case c.config.TLS:
		conn, err = imapclient.DialTLS(addr, opts)
	case c.config.STARTTLS:
		conn, err = imapclient.DialStartTLS(addr, opts)
	default:
		conn, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if c.config.Auth == config.IMAPAuthPlain {
		err = conn.Authenticate(sasl.NewPlainClient("", c.config.Username, c.password))
	} else {
		err = conn.Login(c.config.Username, c.password).Wait()
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("IMAP login: %w", err)
	}

	c.conn = conn
	c.selected = false
	c.logger.Debug("connected and authenticated", "user", c.config.Username)
	return nil
}

// withMailbox runs fn with the configured mailbox selected, connecting if
// necessary. A connection error drops the connection so the next call
// redials.
func (c *Client) withMailbox(ctx context.Context, writable bool, fn func(*imapclient.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.connect(); err != nil {
		return err
	}
	if !c.selected || (writable && !c.writable) {
		opts := &imap.SelectOptions{ReadOnly: !writable}
		if _, err := c.conn.Select(c.config.Mailbox, opts).Wait(); err != nil {
			c.dropLocked()
			return fmt.Errorf("SELECT %q: %w", c.config.Mailbox, err)
		}
		c.selected = true
		c.writable = writable
	}
	if err := fn(c.conn); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.selected = false
}

// Verify logs in and selects the mailbox.
func (c *Client) Verify(ctx context.Context) error {
	return c.withMailbox(ctx, false, func(*imapclient.Client) error { return nil })
}

// Fetch returns up to limit messages from the mailbox, oldest UID first.
func (c *Client) Fetch(ctx context.Context, limit int) ([]Message, error) {
	var messages []Message
	err := c.withMailbox(ctx, false, func(conn *imapclient.Client) error {
		searchData, err := conn.UIDSearch(&imap.SearchCriteria{}, &imap.SearchOptions{ReturnAll: true}).Wait()
		if err != nil {
			return fmt.Errorf("UID SEARCH: %w", err)
		}
		uidSet, ok := searchData.All.(imap.UIDSet)
		if !ok {
			return nil
		}
		uids, _ := uidSet.Nums()
		if limit > 0 && len(uids) > limit {
			uids = uids[:limit]
		}
		if len(uids) == 0 {
			return nil
		}

		var fetchSet imap.UIDSet
		for _, uid := range uids {
			fetchSet.AddNum(uid)
		}
		msgs, err := conn.Fetch(fetchSet, &imap.FetchOptions{
			UID:          true,
			InternalDate: true,
			BodySection:  []*imap.FetchItemBodySection{{Peek: true}}, // whole message
		}).Collect()
		if err != nil {
			return fmt.Errorf("UID FETCH: %w", err)
		}
		for _, buf := range msgs {
			if len(buf.BodySection) == 0 || len(buf.BodySection[0].Bytes) == 0 {
				continue
			}
			messages = append(messages, Message{
				UID:          buf.UID,
				InternalDate: buf.InternalDate,
				Raw:          buf.BodySection[0].Bytes,
			})
		}
		c.logger.Debug("fetched messages", "mailbox", c.config.Mailbox, "count", len(messages))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Expunge permanently deletes messages using UID STORE \Deleted + UID EXPUNGE.
func (c *Client) Expunge(ctx context.Context, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	return c.withMailbox(ctx, true, func(conn *imapclient.Client) error {
		var uidSet imap.UIDSet
		for _, uid := range uids {
			uidSet.AddNum(uid)
		}
		if err := conn.Store(uidSet, &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}, nil).Close(); err != nil {
			return fmt.Errorf("UID STORE \\Deleted: %w", err)
		}
		if err := conn.UIDExpunge(uidSet).Close(); err != nil {
			return fmt.Errorf("UID EXPUNGE: %w", err)
		}
		return nil
	})
}

// Close logs out and disconnects from the IMAP server.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	c.selected = false
	return conn.Logout().Wait()
}
