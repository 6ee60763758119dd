package app

import (
	"context"
	"database/sql"
	"fmt"

	"titra/internal/config"
	"titra/internal/db"
	"titra/internal/metrics"
	"titra/internal/migrate"
	"titra/internal/notify"
	"titra/internal/repo"
	"titra/internal/schedule"
	"titra/internal/snapshot"
)

// App is the composition root: one open database, one scheduler, built once
// per process and handed to the CLI or server.
type App struct {
	DB        *sql.DB
	Repo      repo.Repo
	Scheduler *schedule.Scheduler
	Config    *config.Config
}

// Options tunes construction; zero values give a CLI-grade app with no
// metrics and a no-op notifier.
type Options struct {
	Workspace string
	Notifier  notify.Notifier
	Metrics   *metrics.Collector
}

// Open builds the app for a workspace: ensures the data dir, opens and
// migrates the database, loads the template config and constructs the
// scheduler. The caller owns Close.
func Open(ctx context.Context, opts Options) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.Repo{DB: conn}
	sched := schedule.New(schedule.Options{
		Repo:      r,
		Snapshots: snapshot.NewStore(db.SnapshotPath(opts.Workspace)),
		Notifier:  opts.Notifier,
		Template:  cfg,
		Metrics:   opts.Metrics,
	})
	return &App{DB: conn, Repo: r, Scheduler: sched, Config: cfg}, nil
}

// Close releases the database.
func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
