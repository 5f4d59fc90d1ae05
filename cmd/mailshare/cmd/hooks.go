package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfisher/mailshare/internal/importer"
	"github.com/robfisher/mailshare/internal/index"
	"github.com/robfisher/mailshare/internal/tagcloud"
)

// importHooks brings derived state up to date after mail is imported. A nil
// idx or clouds skips that step.
type importHooks struct {
	idx    *index.Index
	roster *tagcloud.Roster
	clouds *tagcloud.Cache
	logger *slog.Logger
}

// apply syncs the new mails into the index, re-resolves the teams and
// refreshes the clouds of teams the imported mail touched.
func (h importHooks) apply(ctx context.Context, res *importer.Result) error {
	if res == nil || len(res.MailIDs) == 0 {
		return nil
	}
	if h.idx != nil {
		if err := h.idx.Sync(ctx, res.MailIDs...); err != nil {
			return fmt.Errorf("sync index: %w", err)
		}
	}
	if h.roster == nil || h.clouds == nil {
		return nil
	}
	teams, err := h.roster.Refresh()
	if err != nil {
		h.logger.Warn("team resolution failed, using previous teams", "error", err)
	}
	refreshed, err := h.clouds.UpdateForContacts(ctx, teams, res.ContactIDs)
	if err != nil {
		return fmt.Errorf("update tag clouds: %w", err)
	}
	if len(refreshed) > 0 {
		h.logger.Info("tag clouds updated", "teams", refreshed)
	}
	return nil
}
