package recovery

import (
	"strings"
	"time"

	"voicedeck/internal/domain"
)

// Classification splits recorder faults into those the recorder resolves on
// its own and those that need explicit user action.
type Classification int

const (
	// Recoverable faults schedule a single automatic reset back to idle.
	Recoverable Classification = iota
	// Terminal faults stay in the error state until the user acts.
	Terminal
)

// DefaultAutoResetDelay is how long a recoverable error is displayed before
// the recorder resets itself.
const DefaultAutoResetDelay = 5 * time.Second

// Policy classifies recorder errors and owns the auto-reset delay.
type Policy struct {
	AutoResetDelay time.Duration
}

func NewPolicy() Policy {
	return Policy{AutoResetDelay: DefaultAutoResetDelay}
}

// Classify maps an error code (with the message as fallback when the code is
// absent) to a classification. The match is exact category/substring matching,
// never fuzzy.
//
// Permission denial needs the user to re-grant access, and a processing
// failure must keep its preserved transcript on screen for manual retry, so
// both are terminal.
func (Policy) Classify(code domain.ErrorCode, message string) Classification {
	switch code {
	case domain.ErrorCodePermissionDenied, domain.ErrorCodeProcessing, domain.ErrorCodeStartup:
		return Terminal
	case domain.ErrorCodeNoSpeech, domain.ErrorCodeCaptureFault:
		return Recoverable
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "no speech"):
		return Recoverable
	case strings.Contains(lower, "network"):
		return Recoverable
	case strings.Contains(lower, "aborted"):
		return Recoverable
	case strings.Contains(lower, "permission"), strings.Contains(lower, "not allowed"):
		return Terminal
	}
	return Terminal
}
