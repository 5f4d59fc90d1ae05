package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/importer"
	"github.com/robfisher/mailshare/internal/index"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/tagcloud"
	"github.com/robfisher/mailshare/internal/testutil"
	"github.com/robfisher/mailshare/internal/testutil/storetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestImportHooks_Apply(t *testing.T) {
	f := storetest.New(t)
	seed := f.SeedStandard()
	engine := query.NewSQLiteEngine(f.Store.DB())
	idx := index.New(f.Store, discardLogger())
	clouds := tagcloud.NewCache(t.TempDir(), tagcloud.NewBuilder(engine, engine, tagcloud.Options{}), discardLogger())
	roster := tagcloud.NewRoster([]config.TeamConfig{
		{Name: "Team", Address: "team@example.com"},
		{Name: "Nobody", Address: "nobody@example.com"},
	}, f.Store)

	hooks := importHooks{idx: idx, roster: roster, clouds: clouds, logger: discardLogger()}
	res := &importer.Result{
		Imported:   1,
		MailIDs:    []int64{seed.Mails[2]},
		ContactIDs: []int64{seed.Carol, seed.Team},
	}
	testutil.MustNoErr(t, hooks.apply(context.Background(), res), "apply")

	if idx.Len() != 1 {
		t.Errorf("index holds %d mails, want 1", idx.Len())
	}
	for _, team := range []int64{seed.Team, tagcloud.AllTeams} {
		if _, err := os.Stat(clouds.Path(team)); err != nil {
			t.Errorf("cloud for team %d not written: %v", team, err)
		}
	}
	teams := roster.Teams()
	if len(teams) != 2 || teams[1].ContactID != seed.Team || teams[0].ContactID != -1 {
		t.Errorf("roster = %+v", teams)
	}
}

func TestImportHooks_UntouchedTeamsSkipped(t *testing.T) {
	f := storetest.New(t)
	seed := f.SeedStandard()
	engine := query.NewSQLiteEngine(f.Store.DB())
	clouds := tagcloud.NewCache(t.TempDir(), tagcloud.NewBuilder(engine, engine, tagcloud.Options{}), discardLogger())
	roster := tagcloud.NewRoster([]config.TeamConfig{{Name: "Team", Address: "team@example.com"}}, f.Store)

	hooks := importHooks{roster: roster, clouds: clouds, logger: discardLogger()}
	res := &importer.Result{MailIDs: []int64{seed.Mails[1]}, ContactIDs: []int64{seed.Alice, seed.Bob}}
	testutil.MustNoErr(t, hooks.apply(context.Background(), res), "apply")

	for _, team := range []int64{seed.Team, tagcloud.AllTeams} {
		if _, err := os.Stat(clouds.Path(team)); !os.IsNotExist(err) {
			t.Errorf("cloud for team %d written, want none (err %v)", team, err)
		}
	}
}

func TestImportHooks_NothingImported(t *testing.T) {
	hooks := importHooks{logger: discardLogger()}
	if err := hooks.apply(context.Background(), &importer.Result{Duplicates: 3}); err != nil {
		t.Fatalf("apply() = %v", err)
	}
	if err := hooks.apply(context.Background(), nil); err != nil {
		t.Fatalf("apply(nil) = %v", err)
	}
}
