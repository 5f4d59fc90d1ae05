package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/scheduler"
)

func TestServeConfigParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
[server]
api_port = 9090
api_key = "test-key"

[search]
backend = "index"
index_schedule = "*/10 * * * *"

[tag_cloud]
schedule = "30 * * * *"

[[teams]]
name = "Ops"
address = "ops@example.com"

[[teams]]
name = "Dev"
address = "dev@example.com"
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIPort != 9090 || cfg.Server.APIKey != "test-key" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Teams) != 2 || cfg.Teams[1].Address != "dev@example.com" {
		t.Errorf("teams = %+v", cfg.Teams)
	}

	sched := scheduler.New()
	count, errs := sched.AddJobsFromConfig(cfg, scheduler.Jobs{
		TagClouds:    nopJob,
		IndexRebuild: nopJob,
		IMAPPoll:     nopJob,
	})
	if len(errs) != 0 {
		t.Fatalf("AddJobsFromConfig() errors = %v", errs)
	}
	// IMAP is not configured, so only the cloud and index jobs are scheduled.
	if count != 2 {
		t.Errorf("scheduled = %d, want 2", count)
	}
	if !sched.IsScheduled(scheduler.JobIndexRebuild) || sched.IsScheduled(scheduler.JobIMAPPoll) {
		t.Errorf("unexpected job set: %+v", sched.Status())
	}
}

func TestCronExpressionValidation(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"hourly", "0 * * * *", false},
		{"every 15 min", "*/15 * * * *", false},
		{"weekly sunday", "0 0 * * 0", false},
		{"twice daily", "0 8,18 * * *", false},
		{"invalid", "not a cron", true},
		{"empty", "", true},
		{"too many fields", "* * * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scheduler.ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr = %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func nopJob(context.Context) error { return nil }
