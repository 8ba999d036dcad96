package processing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"voicedeck/internal/domain"
	"voicedeck/internal/ports"
)

var ErrEmptyTranscript = errors.New("transcript is empty")

const defaultTimeout = 10 * time.Second

// Outcome is the settled result of one processing call. Exactly one of
// Result/Err is set.
type Outcome struct {
	Result *domain.Reminder
	Err    error
}

// Bridge hands finished transcripts to the reminder parser and reports the
// asynchronous outcome on a channel, one outcome per call.
type Bridge struct {
	parser  ports.ReminderParser
	timeout time.Duration
	log     zerolog.Logger
}

func NewBridge(parser ports.ReminderParser, log zerolog.Logger) *Bridge {
	return &Bridge{parser: parser, timeout: defaultTimeout, log: log}
}

// Process parses the transcript off the caller's goroutine. The returned
// channel is buffered and always delivers exactly one outcome.
func (b *Bridge) Process(ctx context.Context, transcript string) <-chan Outcome {
	out := make(chan Outcome, 1)

	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		out <- Outcome{Err: ErrEmptyTranscript}
		return out
	}

	go func() {
		parseCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		started := time.Now()
		result, err := b.parser.Parse(parseCtx, trimmed)
		if err != nil {
			b.log.Warn().Err(err).Str("transcript", trimmed).Msg("transcript processing failed")
			out <- Outcome{Err: err}
			return
		}

		b.log.Debug().
			Str("title", result.Title).
			Dur("took", time.Since(started)).
			Msg("transcript processed")
		out <- Outcome{Result: result}
	}()

	return out
}
