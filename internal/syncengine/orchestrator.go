package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/logger"
)

// UserStatus tracks one user's most recent run: whether it is currently
// running, when it last ran, and the results from that run.
type UserStatus struct {
	UserID      string
	Running     bool
	LastStarted *time.Time
	LastFinished *time.Time
	LastResults []Result
	LastError   error
}

// UserJob is one user's worth of input to Orchestrator.Run.
type UserJob struct {
	UserID string
	Items  []SourceItem
	Opts   Options
}

// RunUserFunc performs one user's full RunUser invocation. Each
// configured user has its own Hardcover token, and therefore its own
// Pipeline, so the orchestrator is handed a resolver rather than a
// single shared Pipeline.
type RunUserFunc func(ctx context.Context, userID string, items []SourceItem, opts Options) []Result

// Orchestrator drives the global run across every configured user,
// serially or in parallel per the `parallel` flag, and
// exposes per-user status for the supplemented multi-user status
// surface and the `debug`/`validate` CLI commands.
type Orchestrator struct {
	runUser  RunUserFunc
	log      *logger.Logger
	parallel bool

	mu       sync.Mutex
	statuses map[string]*UserStatus
}

func NewOrchestrator(runUser RunUserFunc, log *logger.Logger, parallel bool) *Orchestrator {
	return &Orchestrator{
		runUser:  runUser,
		log:      log,
		parallel: parallel,
		statuses: make(map[string]*UserStatus),
	}
}

// Run executes every job. Per : "users are processed serially or
// in parallel per global `parallel` flag" — a per-user scheduler
// serializes invocations for the same user regardless of this setting,
// which Run's caller (the scheduler) is responsible for upholding by
// never calling Run twice concurrently for the same user.
func (o *Orchestrator) Run(ctx context.Context, jobs []UserJob) map[string][]Result {
	out := make(map[string][]Result, len(jobs))
	var mu sync.Mutex

	runOne := func(job UserJob) {
		status := o.beginStatus(job.UserID)
		results := o.runUser(ctx, job.UserID, job.Items, job.Opts)
		o.finishStatus(status, results, nil)

		mu.Lock()
		out[job.UserID] = results
		mu.Unlock()
	}

	if !o.parallel {
		for _, job := range jobs {
			runOne(job)
		}
		return out
	}

	var wg sync.WaitGroup
	wg.Add(len(jobs))
	for _, job := range jobs {
		job := job
		go func() {
			defer wg.Done()
			runOne(job)
		}()
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) beginStatus(userID string) *UserStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[userID]
	if !ok {
		s = &UserStatus{UserID: userID}
		o.statuses[userID] = s
	}
	now := time.Now()
	s.Running = true
	s.LastStarted = &now
	return s
}

func (o *Orchestrator) finishStatus(s *UserStatus, results []Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()
	s.Running = false
	s.LastFinished = &now
	s.LastResults = results
	s.LastError = err
}

// Status returns a snapshot of userID's last run, or nil if it has never
// run.
func (o *Orchestrator) Status(userID string) *UserStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.statuses[userID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// AllStatuses returns a snapshot of every user's status, for the
// supplemented multi-user dashboard surface.
func (o *Orchestrator) AllStatuses() []UserStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]UserStatus, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, *s)
	}
	return out
}
