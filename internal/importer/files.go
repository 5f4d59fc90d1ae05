package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfisher/mailshare/internal/emlx"
	"github.com/robfisher/mailshare/internal/mbox"
)

// MaxMessageBytes bounds the size of a single imported message file.
const MaxMessageBytes = 64 << 20

// ImportPaths imports every listed message file. Directories are walked
// recursively, in lexical order, for .eml and Apple Mail .emlx files and
// for .mbox files holding many messages.
// Unreadable or unparseable files are logged and counted as failed; the
// run only stops early on context cancellation or a store error.
func (im *Importer) ImportPaths(ctx context.Context, paths []string) (*Result, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := im.importFile(ctx, path, res); err != nil {
			return res, err
		}
	}
	im.logger.Info("import finished",
		"files", len(files),
		"imported", res.Imported,
		"duplicates", res.Duplicates,
		"failed", res.Failed)
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, path string, res *Result) error {
	info, err := os.Stat(path)
	if err != nil {
		im.logger.Warn("skipping file", "path", path, "error", err)
		res.Failed++
		return nil
	}
	if isMbox(path) {
		return im.importMbox(ctx, path, res)
	}
	if info.Size() > MaxMessageBytes {
		im.logger.Warn("skipping oversized file", "path", path, "size", info.Size())
		res.Failed++
		return nil
	}

	if strings.EqualFold(filepath.Ext(path), ".emlx") {
		msg, err := emlx.ParseFile(path)
		if err != nil {
			im.logger.Warn("skipping file", "path", path, "error", err)
			res.Failed++
			return nil
		}
		date := msg.SentDate
		if date.IsZero() {
			date = info.ModTime()
		}
		return im.Add(ctx, res, path, msg.Raw, date)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		im.logger.Warn("skipping file", "path", path, "error", err)
		res.Failed++
		return nil
	}
	return im.Add(ctx, res, path, raw, info.ModTime())
}

// importMbox streams the messages of an mbox file. Each message is named
// path#n in log lines, counting from 1.
func (im *Importer) importMbox(ctx context.Context, path string, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		im.logger.Warn("skipping file", "path", path, "error", err)
		res.Failed++
		return nil
	}
	defer f.Close()

	r := mbox.NewReader(f, MaxMessageBytes)
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		source := fmt.Sprintf("%s#%d", path, n)
		msg, err := r.Next()
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, mbox.ErrMessageTooLarge):
			im.logger.Warn("skipping oversized message", "source", source, "error", err)
			res.Failed++
			continue
		case err != nil:
			im.logger.Warn("stopped reading mbox", "source", source, "error", err)
			res.Failed++
			return nil
		}
		if err := im.Add(ctx, res, source, msg.Raw, msg.Date); err != nil {
			return err
		}
	}
}

// Add ingests one raw message and folds the outcome into res. Parse
// failures and duplicates are counted; other errors are returned. source
// names the message in log lines.
func (im *Importer) Add(ctx context.Context, res *Result, source string, raw []byte, fallbackDate time.Time) error {
	got, err := im.IngestRaw(ctx, raw, fallbackDate)
	switch {
	case err == nil:
		res.Imported++
		res.MailIDs = append(res.MailIDs, got.MailID)
		res.addContacts(got.ContactIDs)
		return nil
	case errors.Is(err, ErrDuplicate):
		im.logger.Debug("skipping duplicate", "source", source)
		res.Duplicates++
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrUnparseable):
		im.logger.Warn("skipping unparseable message", "source", source, "error", err)
		res.Failed++
		return nil
	default:
		return fmt.Errorf("%s: %w", source, err)
	}
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isMessageFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isMessageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml", ".emlx", ".mbox":
		return true
	}
	return false
}

func isMbox(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mbox")
}
