// Package session implements SessionManager: it converts a stream of
// small progress updates into a sparser stream of Hardcover writes by
// batching progress behind a per-book "session" that flushes on a
// timeout, a completion, or a significant jump.
package session

import (
	"fmt"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
)

// Reason is the short machine-readable justification attached to every
// Decision, echoed into the per-book result log by the sync pipeline.
type Reason string

const (
	ReasonDisabled          Reason = "delayed_updates_disabled"
	ReasonBookCompletion    Reason = "book_completion"
	ReasonBootstrap         Reason = "significant_progress_change"
	ReasonMaxDelayExceeded  Reason = "max_delay_exceeded"
	ReasonSignificantChange Reason = "significant_progress_change"
	ReasonActiveSession     Reason = "active_session_detected"
)

// Action is what the pipeline should do with the current reading.
type Action string

const (
	ActionSyncImmediately Action = "sync_immediately"
	ActionDelayUpdate     Action = "delay_update"
)

// Decision is the result of shouldDelayUpdate.
type Decision struct {
	Action         Action
	Reason         Reason
	SessionTimeout int // seconds, populated only for ActionDelayUpdate
}

// Config mirrors delayed_updates block, already validated.
type Config struct {
	Enabled             bool
	SessionTimeout      int // seconds, 60-7200, default 900
	MaxDelay            int // seconds, 300-86400, default 3600
	ImmediateCompletion bool
}

// DefaultConfig returns the documented default delayed-update settings.
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		SessionTimeout:      900,
		MaxDelay:            3600,
		ImmediateCompletion: true,
	}
}

// Validate enforces the ranges and cross-field constraint:
// session_timeout in [60,7200], max_delay in [300,86400], and
// session_timeout < max_delay.
func (c Config) Validate() error {
	if c.SessionTimeout < 60 || c.SessionTimeout > 7200 {
		return shelferrors.New(shelferrors.ValidationError, "session_timeout must be within [60,7200], got %d", c.SessionTimeout)
	}
	if c.MaxDelay < 300 || c.MaxDelay > 86400 {
		return shelferrors.New(shelferrors.ValidationError, "max_delay must be within [300,86400], got %d", c.MaxDelay)
	}
	if c.SessionTimeout >= c.MaxDelay {
		return shelferrors.New(shelferrors.ValidationError, "session_timeout (%d) must be less than max_delay (%d)", c.SessionTimeout, c.MaxDelay)
	}
	return nil
}

// milestones are the round-percent crossings that force an immediate
// sync, even when the absolute delta is below threshold.
var milestones = []float64{10, 25, 50, 75, 90}

// Input bundles everything shouldDelayUpdate needs to decide.
type Input struct {
	HasPreviousProgress   bool
	IsCompletionDetected  bool
	TimeSinceLastSync     time.Duration
	LastPushedProgress    float64
	CurrentProgress       float64
	SignificantThreshold  float64 // "significant" progress-change threshold, e.g. min_progress_threshold
}

// ShouldDelayUpdate implements the delayed-update decision function, in
// a fixed priority order: disabled first, then completion detection,
// then bootstrap (no previous progress), then the max-delay timeout,
// then significant change or milestone crossing, then default to
// delaying.
func ShouldDelayUpdate(cfg Config, in Input) Decision {
	if !cfg.Enabled {
		return Decision{Action: ActionSyncImmediately, Reason: ReasonDisabled}
	}
	if in.IsCompletionDetected && cfg.ImmediateCompletion {
		return Decision{Action: ActionSyncImmediately, Reason: ReasonBookCompletion}
	}
	if !in.HasPreviousProgress {
		return Decision{Action: ActionSyncImmediately, Reason: ReasonBootstrap}
	}
	if in.TimeSinceLastSync > time.Duration(cfg.MaxDelay)*time.Second {
		return Decision{Action: ActionSyncImmediately, Reason: ReasonMaxDelayExceeded}
	}

	delta := in.CurrentProgress - in.LastPushedProgress
	if delta < 0 {
		delta = -delta
	}
	if delta > in.SignificantThreshold || crossesMilestone(in.LastPushedProgress, in.CurrentProgress) {
		return Decision{Action: ActionSyncImmediately, Reason: ReasonSignificantChange}
	}

	return Decision{Action: ActionDelayUpdate, Reason: ReasonActiveSession, SessionTimeout: cfg.SessionTimeout}
}

func crossesMilestone(prev, curr float64) bool {
	lo, hi := prev, curr
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, m := range milestones {
		if lo < m && m <= hi {
			return true
		}
	}
	return false
}

// String renders a Decision for structured logging.
func (d Decision) String() string {
	return fmt.Sprintf("%s/%s", d.Action, d.Reason)
}
