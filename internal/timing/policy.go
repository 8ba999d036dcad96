package timing

import (
	"time"

	"voicedeck/internal/domain"
)

// Policy holds the per-environment timing constants for a recording session.
// It is a pure function of the environment descriptor: same descriptor, same
// values, every call.
type Policy struct {
	// MaxDuration is the hard cap on a continuous recording session.
	MaxDuration time.Duration
	// AutoStopBuffer is how far before MaxDuration the forced refresh stop
	// happens, so the engine is stopped before the platform kills it.
	AutoStopBuffer time.Duration
	// RefreshPause is the gap between the forced stop and the automatic
	// restart during a refresh cycle.
	RefreshPause time.Duration
	// RetryDelay is the backoff used by the manual force-retry sequence.
	RetryDelay time.Duration

	constrained bool
}

// RefreshSchedule describes the forced mid-session stop/pause/restart cycle
// required by constrained environments.
type RefreshSchedule struct {
	AutoStopAt time.Duration
	Pause      time.Duration
}

const (
	unconstrainedMaxDuration = 30 * time.Second
	unconstrainedRetryDelay  = 150 * time.Millisecond

	// Installed web apps on iOS kill continuous recognition after a few
	// seconds; iOS 16 and earlier kill it even sooner.
	constrainedMaxDuration      = 6 * time.Second
	constrainedOlderMaxDuration = 3 * time.Second
	constrainedAutoStopBuffer   = 750 * time.Millisecond
	constrainedRefreshPause     = 300 * time.Millisecond
	constrainedRetryDelay       = 400 * time.Millisecond

	olderIOSMajorCutoff = 17
)

// ForEnvironment computes the timing policy for an environment descriptor.
func ForEnvironment(env domain.Environment) Policy {
	if !env.Constrained() {
		return Policy{
			MaxDuration: unconstrainedMaxDuration,
			RetryDelay:  unconstrainedRetryDelay,
		}
	}

	maxDuration := constrainedMaxDuration
	if env.OSMajor > 0 && env.OSMajor < olderIOSMajorCutoff {
		maxDuration = constrainedOlderMaxDuration
	}

	return Policy{
		MaxDuration:    maxDuration,
		AutoStopBuffer: constrainedAutoStopBuffer,
		RefreshPause:   constrainedRefreshPause,
		RetryDelay:     constrainedRetryDelay,
		constrained:    true,
	}
}

// Refresh returns the forced refresh schedule, or nil when the environment
// needs none. AutoStopAt is always strictly below MaxDuration.
func (p Policy) Refresh() *RefreshSchedule {
	if !p.constrained {
		return nil
	}
	return &RefreshSchedule{
		AutoStopAt: p.MaxDuration - p.AutoStopBuffer,
		Pause:      p.RefreshPause,
	}
}

// Constrained reports whether this policy was derived from a constrained
// environment.
func (p Policy) Constrained() bool { return p.constrained }
