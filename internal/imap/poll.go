package imap

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	imap "github.com/emersion/go-imap/v2"
	"github.com/robfisher/mailshare/internal/importer"
)

// mailbox is the part of Client the poller uses.
type mailbox interface {
	Fetch(ctx context.Context, limit int) ([]Message, error)
	Expunge(ctx context.Context, uids []imap.UID) error
}

// PollOptions controls a Poller.
type PollOptions struct {
	MaxMessages int  // messages fetched per poll
	Expunge     bool // delete imported and duplicate messages from the server
}

// Poller imports new messages from a mailbox.
type Poller struct {
	box      mailbox
	importer *importer.Importer
	opts     PollOptions
	logger   *slog.Logger
}

// NewPoller creates a Poller reading from client.
func NewPoller(client *Client, im *importer.Importer, opts PollOptions, logger *slog.Logger) *Poller {
	return newPoller(client, im, opts, logger)
}

func newPoller(box mailbox, im *importer.Importer, opts PollOptions, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{box: box, importer: im, opts: opts, logger: logger}
}

// Poll fetches one batch of messages and imports them. Messages that are
// stored, or were already stored, are expunged when enabled; messages that
// fail to parse stay on the server.
func (p *Poller) Poll(ctx context.Context) (*importer.Result, error) {
	msgs, err := p.box.Fetch(ctx, p.opts.MaxMessages)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	res := &importer.Result{}
	var done []imap.UID
	for _, m := range msgs {
		failed := res.Failed
		source := "imap uid " + strconv.FormatUint(uint64(m.UID), 10)
		if err := p.importer.Add(ctx, res, source, m.Raw, m.InternalDate); err != nil {
			return res, err
		}
		if res.Failed == failed {
			done = append(done, m.UID)
		}
	}

	if p.opts.Expunge && len(done) > 0 {
		if err := p.box.Expunge(ctx, done); err != nil {
			return res, fmt.Errorf("expunge: %w", err)
		}
	}

	p.logger.Info("mailbox polled",
		"fetched", len(msgs),
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"failed", res.Failed,
		"expunged", p.opts.Expunge && len(done) > 0)
	return res, nil
}
