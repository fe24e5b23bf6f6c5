// Package app wires the adapters, matcher, session manager, and sync
// pipeline into one object per configured user.
package app

import (
	"context"
	"fmt"

	"github.com/rohit-purandare/shelfbridge/internal/absclient"
	"github.com/rohit-purandare/shelfbridge/internal/concurrency"
	"github.com/rohit-purandare/shelfbridge/internal/config"
	"github.com/rohit-purandare/shelfbridge/internal/hardcover"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/matcher"
	"github.com/rohit-purandare/shelfbridge/internal/ratelimit"
	"github.com/rohit-purandare/shelfbridge/internal/scheduler"
	"github.com/rohit-purandare/shelfbridge/internal/session"
	"github.com/rohit-purandare/shelfbridge/internal/store"
	"github.com/rohit-purandare/shelfbridge/internal/syncengine"
)

// completionThreshold is the percent at or above which a book counts as
// finished absent an explicit finished flag from the source.
const completionThreshold = 95.0

// UserRuntime is one configured user's fully wired set of adapters.
type UserRuntime struct {
	User syncUser
	ABS  *absclient.Client
	HC   *hardcover.Client
}

type syncUser = config.User

// App is the process-wide runtime: one shared cache store, one pipeline
// per user (each with its own rate-limited adapters and matcher), and
// the orchestrator tying them together.
type App struct {
	Config       *config.Config
	Store        *store.Store
	Log          *logger.Logger
	Orchestrator    *syncengine.Orchestrator
	Scheduler       *scheduler.Scheduler
	users           map[string]*UserRuntime
	pipelines       map[string]*syncengine.Pipeline
	sessionManagers map[string]*session.Manager
	limiters        []*ratelimit.Limiter
}

// New builds the full runtime from a loaded, validated Config.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	st, err := store.Open(cfg.CachePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}

	a := &App{
		Config:          cfg,
		Store:           st,
		Log:             log,
		users:           make(map[string]*UserRuntime),
		pipelines:       make(map[string]*syncengine.Pipeline),
		sessionManagers: make(map[string]*session.Manager),
	}

	for _, u := range cfg.Users {
		absLimiter := ratelimit.New(cfg.AudiobookshelfRateLimit, log)
		absSem := concurrency.New(cfg.AudiobookshelfSemaphore)
		hcLimiter := ratelimit.New(cfg.HardcoverRateLimit, log)
		hcSem := concurrency.New(cfg.HardcoverSemaphore)

		absC := absclient.New(u.ABSUrl, u.ABSToken, absLimiter, absSem, log)
		hcC := hardcover.New(hardcover.DefaultBaseURL, u.HardcoverToken, hcLimiter, hcSem, log)
		a.limiters = append(a.limiters, absLimiter, hcLimiter)

		a.users[u.ID] = &UserRuntime{User: u, ABS: absC, HC: hcC}

		m := matcher.New(log)
		sessions := session.NewManager(st, cfg.SessionConfig(), log)
		pipeline := syncengine.NewPipeline(st, m, sessions, hcC, log, cfg.Thresholds(), cfg.SessionConfig(), nil)
		a.pipelines[u.ID] = pipeline
		a.sessionManagers[u.ID] = sessions
	}

	a.Orchestrator = syncengine.NewOrchestrator(a.runUserViaPipeline, log, cfg.Parallel)

	sch, err := scheduler.New(cfg.Timezone, log)
	if err != nil {
		return nil, err
	}
	a.Scheduler = sch

	return a, nil
}

// Close releases resources: every user's rate limiter sweep goroutine,
// then the underlying SQLite connection.
func (a *App) Close() error {
	for _, l := range a.limiters {
		l.Close()
	}
	return a.Store.Close()
}

// PipelineFor returns the wired pipeline for userID, or nil if unknown.
func (a *App) PipelineFor(userID string) *syncengine.Pipeline {
	return a.pipelines[userID]
}

// RuntimeFor returns the wired adapters for userID, or nil if unknown.
func (a *App) RuntimeFor(userID string) *UserRuntime {
	return a.users[userID]
}

// RecoverSessions flushes every configured user's expired delayed-update
// sessions through their pipeline, meant to run once at process start
// before the scheduler begins firing so a prior shutdown's in-flight
// sessions aren't stranded until a future tick happens to touch them.
func (a *App) RecoverSessions(ctx context.Context) {
	for _, u := range a.Config.Users {
		pipeline := a.pipelines[u.ID]
		manager := a.sessionManagers[u.ID]
		if pipeline == nil || manager == nil {
			continue
		}
		processed, failed, err := manager.ProcessExpiredSessions(ctx, u.ID, func(ctx context.Context, data session.SessionData) error {
			return pipeline.FlushSession(ctx, data)
		})
		if err != nil {
			a.Log.Warn("session recovery failed", map[string]interface{}{"user": u.ID, "error": err.Error()})
			continue
		}
		if processed > 0 || failed > 0 {
			a.Log.Info("recovered expired sessions", map[string]interface{}{"user": u.ID, "processed": processed, "failed": failed})
		}
	}
}

// syncOptions projects the static config into per-run Options.
func (a *App) syncOptions(forceSync, dryRun bool) syncengine.Options {
	return syncengine.Options{
		ForceSync:                 forceSync || a.Config.ForceSync,
		DryRun:                    dryRun || a.Config.DryRun,
		MinProgressThreshold:      a.Config.MinProgressThreshold,
		AutoAddBooks:              a.Config.AutoAddBooks,
		PreventProgressRegression: a.Config.PreventProgressRegression,
		DeepScanInterval:          a.Config.DeepScanInterval,
	}
}

// fetchSourceItems pulls every item across every ABS library visible to
// userID's token, converting each to the pipeline's SourceItem shape.
func (a *App) fetchSourceItems(ctx context.Context, rt *UserRuntime) ([]syncengine.SourceItem, error) {
	libs, err := rt.ABS.ListLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing audiobookshelf libraries: %w", err)
	}

	var items []syncengine.SourceItem
	for _, lib := range libs {
		if !libraryIncluded(a.Config.Libraries, lib.Name) {
			continue
		}
		absItems, err := rt.ABS.ListItems(ctx, lib.ID, a.Config.PageSize, a.Config.MaxBooksToFetch)
		if err != nil {
			return nil, fmt.Errorf("listing items in library %s: %w", lib.Name, err)
		}
		for _, it := range absItems {
			items = append(items, it.ToSourceItem())
		}
	}
	return items, nil
}

func libraryIncluded(libs config.Libraries, name string) bool {
	for _, ex := range libs.Exclude {
		if ex == name {
			return false
		}
	}
	if len(libs.Include) == 0 {
		return true
	}
	for _, in := range libs.Include {
		if in == name {
			return true
		}
	}
	return false
}

// runUserViaPipeline satisfies syncengine.RunUserFunc by dispatching to
// userID's own pipeline, since each user carries a distinct Hardcover
// token and therefore a distinct Pipeline.
func (a *App) runUserViaPipeline(ctx context.Context, userID string, items []syncengine.SourceItem, opts syncengine.Options) []syncengine.Result {
	pipeline, ok := a.pipelines[userID]
	if !ok {
		return []syncengine.Result{{UserID: userID, Status: syncengine.StatusError, Reason: "unknown user"}}
	}
	return pipeline.RunUser(ctx, userID, items, opts, a.Config.Workers, completionThreshold)
}

// SyncAllUsers runs a full sync pass for every configured user, serially
// or in parallel per Config.Parallel, via the Orchestrator so status is
// tracked for the `debug`/status surfaces.
func (a *App) SyncAllUsers(ctx context.Context, forceSync, dryRun bool) (map[string][]syncengine.Result, error) {
	jobs := make([]syncengine.UserJob, 0, len(a.Config.Users))
	opts := a.syncOptions(forceSync, dryRun)
	for _, u := range a.Config.Users {
		rt := a.users[u.ID]
		pipeline := a.pipelines[u.ID]
		if err := pipeline.RunDeepScanOrReuse(ctx, u.ID, opts.DeepScanInterval); err != nil {
			return nil, fmt.Errorf("preparing hardcover library for %s: %w", u.ID, err)
		}
		items, err := a.fetchSourceItems(ctx, rt)
		if err != nil {
			return nil, fmt.Errorf("fetching items for %s: %w", u.ID, err)
		}
		jobs = append(jobs, syncengine.UserJob{UserID: u.ID, Items: items, Opts: opts})
	}
	return a.Orchestrator.Run(ctx, jobs), nil
}

// SyncUser runs one full sync pass for userID: decide whether this run
// is due for a full library reconciliation or can reuse the matcher's
// already-built index, fetch, then run the pipeline over every item.
func (a *App) SyncUser(ctx context.Context, userID string, forceSync, dryRun bool) ([]syncengine.Result, error) {
	rt, ok := a.users[userID]
	if !ok {
		return nil, fmt.Errorf("unknown user %q", userID)
	}
	pipeline := a.pipelines[userID]
	opts := a.syncOptions(forceSync, dryRun)

	if err := pipeline.RunDeepScanOrReuse(ctx, userID, opts.DeepScanInterval); err != nil {
		return nil, fmt.Errorf("preparing hardcover library: %w", err)
	}

	items, err := a.fetchSourceItems(ctx, rt)
	if err != nil {
		return nil, err
	}

	results := pipeline.RunUser(ctx, userID, items, opts, a.Config.Workers, completionThreshold)
	return results, nil
}
