// Package progress holds the pure, stateless functions that decide
// whether an ABS progress reading is valid, complete, or a regression
// relative to what was last pushed to Hardcover. Nothing in this package
// touches the network or the cache; every function is a straight
// computation over its arguments so it can be tested without fixtures.
package progress

import "math"

// Epsilon is the tolerance below which two progress values are treated
// as unchanged.
const Epsilon = 0.01

// Direction classifies how progress moved between two readings.
type Direction string

const (
	DirectionNone     Direction = "none"
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// ValidationOptions configures GetValidatedProgress.
type ValidationOptions struct {
	// AllowNull permits a nil return when no progress signal is present
	// at all, instead of treating that as an error.
	AllowNull bool
}

// ErrInvalidProgress is returned by GetValidatedProgress when the
// supplied value is not a finite, sane percentage.
type ErrInvalidProgress struct {
	Reason string
}

func (e *ErrInvalidProgress) Error() string { return "invalid progress: " + e.Reason }

// GetValidatedProgress returns raw when it lies in [0, 100], rejecting
// NaN/Inf and out-of-range values; only sub-epsilon floating point noise
// at the boundaries (e.g. 100.0000001 or -0.0000001) is silently
// absorbed into 100 or 0.
func GetValidatedProgress(raw float64, hasValue bool, opts ValidationOptions) (*float64, error) {
	if !hasValue {
		if opts.AllowNull {
			return nil, nil
		}
		return nil, &ErrInvalidProgress{Reason: "no progress value present"}
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil, &ErrInvalidProgress{Reason: "non-finite progress value"}
	}

	const boundaryNoise = 1e-6
	v := raw
	if v < 0 && v > -boundaryNoise {
		v = 0
	}
	if v > 100 && v < 100+boundaryNoise {
		v = 100
	}

	if v < 0 || v > 100 {
		return nil, &ErrInvalidProgress{Reason: "progress out of [0,100] range"}
	}

	return &v, nil
}

// CompletionOptions configures IsComplete.
type CompletionOptions struct {
	// Threshold is the percent at or above which progress counts as
	// complete even without an explicit finished flag. Default 95.
	Threshold float64
	// IsFinishedFlag mirrors ABS's own is_finished signal.
	IsFinishedFlag bool
	// TimeRemainingSeconds and TimeRemainingTolerance let an audiobook
	// count as complete when only a negligible tail remains.
	TimeRemainingSeconds   *float64
	TimeRemainingTolerance float64
	// PagesRemaining and PagesRemainingTolerance do the same for ebooks.
	PagesRemaining          *int
	PagesRemainingTolerance int
}

// IsComplete reports whether progress should be treated as a finished
// read: percent at or above threshold, an explicit finished flag, time
// remaining at or below its tolerance, or pages remaining at or below
// the configured tolerance.
func IsComplete(progressPercent float64, opts CompletionOptions) bool {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 95
	}

	if opts.IsFinishedFlag {
		return true
	}
	if progressPercent >= threshold {
		return true
	}
	if opts.TimeRemainingSeconds != nil && *opts.TimeRemainingSeconds <= opts.TimeRemainingTolerance {
		return true
	}
	if opts.PagesRemaining != nil && *opts.PagesRemaining <= opts.PagesRemainingTolerance {
		return true
	}
	return false
}

// ChangeResult is the outcome of DetectProgressChange.
type ChangeResult struct {
	HasChange      bool
	Direction      Direction
	AbsoluteChange float64
}

// DetectProgressChange compares two progress readings with a fixed
// epsilon of 0.01.
func DetectProgressChange(prev, curr float64) ChangeResult {
	diff := curr - prev
	abs := math.Abs(diff)

	if abs <= Epsilon {
		return ChangeResult{HasChange: false, Direction: DirectionNone, AbsoluteChange: abs}
	}

	dir := DirectionIncrease
	if diff < 0 {
		dir = DirectionDecrease
	}
	return ChangeResult{HasChange: true, Direction: dir, AbsoluteChange: abs}
}

// Classification is the outcome of ClassifyRereadOrRegression.
type Classification string

const (
	ClassificationOK         Classification = "ok"
	ClassificationBlock      Classification = "block"
	ClassificationNewSession Classification = "new_session"
	ClassificationWarn       Classification = "warn"
)

// RegressionThresholds configures ClassifyRereadOrRegression. Zero values
// are replaced with documented defaults.
type RegressionThresholds struct {
	HighProgressThreshold    float64 // default 85
	RereadThreshold          float64 // default 30
	RegressionBlockThreshold float64 // default 50
	RegressionWarnThreshold  float64 // default 15
}

func (t RegressionThresholds) withDefaults() RegressionThresholds {
	if t.HighProgressThreshold == 0 {
		t.HighProgressThreshold = 85
	}
	if t.RereadThreshold == 0 {
		t.RereadThreshold = 30
	}
	if t.RegressionBlockThreshold == 0 {
		t.RegressionBlockThreshold = 50
	}
	if t.RegressionWarnThreshold == 0 {
		t.RegressionWarnThreshold = 15
	}
	return t
}

// ClassifyRereadOrRegression implements the reread/regression decision
// table. isCompleted reflects the already-computed IsComplete result
// for curr.
func ClassifyRereadOrRegression(prev, curr float64, isCompleted bool, thresholds RegressionThresholds) Classification {
	t := thresholds.withDefaults()

	if isCompleted && curr < t.HighProgressThreshold {
		return ClassificationBlock
	}
	if prev >= t.HighProgressThreshold && (prev-curr) > t.RegressionBlockThreshold {
		return ClassificationBlock
	}
	if prev >= t.HighProgressThreshold && curr <= t.RereadThreshold {
		return ClassificationNewSession
	}
	if prev >= t.HighProgressThreshold && (prev-curr) > t.RegressionWarnThreshold {
		return ClassificationWarn
	}
	return ClassificationOK
}
