package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/robfisher/mailshare/internal/api"
	"github.com/robfisher/mailshare/internal/cache"
	"github.com/robfisher/mailshare/internal/imap"
	"github.com/robfisher/mailshare/internal/importer"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/scheduler"
	"github.com/robfisher/mailshare/internal/tagcloud"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search pages and API with scheduled maintenance",
	Long: `Run mailshare as a long-running server.

The server runs in the foreground and performs:
  - HTTP pages and JSON API on the configured port (default: 8080)
  - Scheduled tag cloud refreshes for every team
  - Scheduled index rebuilds when [search] backend = "index"
  - Scheduled mailbox polling when [imap] host is set

Configure schedules in config.toml:
  [tag_cloud]
  schedule = "0 * * * *"     # hourly (cron format)

  [imap]
  host = "mail.example.com"
  username = "shared@example.com"
  schedule = "*/5 * * * *"   # every five minutes

Cron format: minute hour day-of-month month day-of-week

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	st, err := openLocalStore()
	if err != nil {
		return err
	}
	defer st.Close()

	engine := query.NewSQLiteEngine(st.DB())
	be, err := openBackend(ctx, st, engine, "")
	if err != nil {
		return err
	}

	dir, err := cache.NewDirectory(engine, cfg.Search.DirectoryCacheSize)
	if err != nil {
		return fmt.Errorf("create directory cache: %w", err)
	}

	roster := tagcloud.NewRoster(cfg.Teams, st)
	if _, err := roster.Refresh(); err != nil {
		logger.Warn("team resolution failed", "error", err)
	}
	clouds := newCloudCache(be.data, engine)
	hooks := importHooks{idx: be.idx, roster: roster, clouds: clouds, logger: logger}

	jobs := scheduler.Jobs{
		TagClouds: func(ctx context.Context) error {
			teams, err := roster.Refresh()
			if err != nil {
				logger.Warn("team resolution failed, using previous teams", "error", err)
			}
			// Evict team names that may have been renamed since the last run.
			dir.Purge()
			return clouds.RefreshAll(ctx, teams)
		},
	}
	if be.idx != nil {
		jobs.IndexRebuild = be.idx.Rebuild
	}
	if cfg.IMAP.Enabled() {
		password, err := imap.ResolvePassword(cfg)
		if err != nil {
			return err
		}
		client := imap.NewClient(imap.FromConfig(cfg.IMAP), password, imap.WithLogger(logger))
		defer client.Close()
		poller := imap.NewPoller(client, importer.New(st, logger), imap.PollOptions{
			MaxMessages: cfg.IMAP.MaxMessages,
			Expunge:     cfg.IMAP.Expunge,
		}, logger)
		jobs.IMAPPoll = func(ctx context.Context) error {
			res, err := poller.Poll(ctx)
			if hookErr := hooks.apply(ctx, res); hookErr != nil {
				logger.Error("post-import update failed", "error", hookErr)
			}
			return err
		}
	}

	sched := scheduler.New().WithLogger(logger)
	count, errs := sched.AddJobsFromConfig(cfg, jobs)
	for _, err := range errs {
		logger.Error("failed to schedule job", "error", err)
	}
	sched.Start()

	svc := api.Services{
		Store:     st,
		Engine:    engine,
		Data:      be.data,
		Directory: dir,
		Clouds:    clouds,
		Teams:     roster,
		Scheduler: sched,
	}
	if be.idx != nil {
		svc.Index = be.idx
	}
	apiServer := api.NewServer(cfg, svc, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("mailshare server started\n")
	fmt.Printf("  Search pages: http://%s/\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Backend: %s\n", cfg.Search.Backend)
	fmt.Printf("  Teams: %d\n", len(roster.Teams()))
	fmt.Printf("  Scheduled jobs: %d\n", count)
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	fmt.Println()
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next run at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Printf("\nAPI server error: %v\n", err)
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	fmt.Println("Waiting for running jobs to complete...")
	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}
	return nil
}
