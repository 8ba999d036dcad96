package parse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voicedeck/internal/domain"
)

var ErrNoTitle = errors.New("could not make out what to be reminded about")

// Parser turns a normalized transcript into a schedulable reminder. It is
// deterministic: time phrases resolve against an injectable clock.
type Parser struct {
	normalizer *Normalizer
	now        func() time.Time
}

func NewParser(normalizer *Normalizer) *Parser {
	return &Parser{normalizer: normalizer, now: time.Now}
}

// WithClock fixes the reference time, for tests.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

var (
	rePrefix   = regexp.MustCompile(`(?i)^(please\s+)?(remind me to|remind me|remember to|i need to|add a reminder to|add a reminder|new reminder to|new reminder)\s+`)
	reRepeat   = regexp.MustCompile(`(?i)\b(every day|daily|every morning|every week|weekly|every month|monthly)\b`)
	reInDelay  = regexp.MustCompile(`(?i)\bin (\d+) (minutes?|hours?)\b`)
	reAtClock  = regexp.MustCompile(`(?i)\bat (\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	reTomorrow = regexp.MustCompile(`(?i)\btomorrow\b`)
	reTonight  = regexp.MustCompile(`(?i)\btonight\b`)
	reNoon     = regexp.MustCompile(`(?i)\bat noon\b`)
)

func (p *Parser) Parse(ctx context.Context, transcript string) (*domain.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := p.normalizer.Apply(transcript)
	text = rePrefix.ReplaceAllString(strings.TrimSpace(text), "")

	repeat := domain.RepeatNone
	if match := reRepeat.FindString(text); match != "" {
		repeat = repeatFor(match)
		text = strings.Replace(text, match, "", 1)
	}

	now := p.now()
	due, explicit, text := p.extractDue(text, now)

	title := cleanTitle(text)
	if title == "" {
		return nil, ErrNoTitle
	}

	if !explicit {
		// No time phrase at all: nudge an hour ahead rather than firing
		// immediately.
		due = now.Add(time.Hour)
	}

	reminder := &domain.Reminder{
		Title:  title,
		DueAt:  due,
		Repeat: repeat,
		Source: strings.TrimSpace(transcript),
	}
	reminder.Summary = summarize(reminder, now)
	return reminder, nil
}

// extractDue pulls the first recognized time phrase out of the text and
// returns the remaining text with the phrase removed.
func (p *Parser) extractDue(text string, now time.Time) (time.Time, bool, string) {
	day := now
	dayShifted := false
	if loc := reTomorrow.FindStringIndex(text); loc != nil {
		day = day.AddDate(0, 0, 1)
		dayShifted = true
		text = text[:loc[0]] + text[loc[1]:]
	}

	if match := reInDelay.FindStringSubmatch(text); match != nil {
		amount, _ := strconv.Atoi(match[1])
		unit := time.Minute
		if strings.HasPrefix(strings.ToLower(match[2]), "hour") {
			unit = time.Hour
		}
		text = strings.Replace(text, match[0], "", 1)
		return now.Add(time.Duration(amount) * unit), true, text
	}

	if loc := reNoon.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + text[loc[1]:]
		return atTime(day, 12, 0, now, dayShifted), true, text
	}

	if loc := reTonight.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + text[loc[1]:]
		return atTime(day, 20, 0, now, dayShifted), true, text
	}

	if match := reAtClock.FindStringSubmatch(text); match != nil {
		hour, _ := strconv.Atoi(match[1])
		minute := 0
		if match[2] != "" {
			minute, _ = strconv.Atoi(match[2])
		}
		meridiem := strings.ToLower(match[3])
		switch {
		case meridiem == "pm" && hour < 12:
			hour += 12
		case meridiem == "am" && hour == 12:
			hour = 0
		case meridiem == "" && hour < 12:
			// Bare "at 5" past 5am means 5pm today.
			if !dayShifted && atTime(day, hour, minute, now, dayShifted).Before(now) {
				hour += 12
			}
		}
		text = strings.Replace(text, match[0], "", 1)
		return atTime(day, hour, minute, now, dayShifted), true, text
	}

	if dayShifted {
		return time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, day.Location()), true, text
	}
	return now, false, text
}

// atTime places a wall-clock time on the given day, rolling to the next day
// when the moment already passed.
func atTime(day time.Time, hour, minute int, now time.Time, dayShifted bool) time.Time {
	due := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
	if !dayShifted && due.Before(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}

func repeatFor(phrase string) domain.RepeatRule {
	switch strings.ToLower(phrase) {
	case "every day", "daily", "every morning":
		return domain.RepeatDaily
	case "every week", "weekly":
		return domain.RepeatWeekly
	case "every month", "monthly":
		return domain.RepeatMonthly
	default:
		return domain.RepeatNone
	}
}

func cleanTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.Trim(text, " .,!?")
	return strings.TrimSpace(text)
}

func summarize(r *domain.Reminder, now time.Time) string {
	when := r.DueAt.Format("3:04 PM")
	switch {
	case r.Repeat == domain.RepeatDaily:
		when = "daily at " + when
	case r.Repeat == domain.RepeatWeekly:
		when = fmt.Sprintf("every %s at %s", r.DueAt.Weekday(), when)
	case r.Repeat == domain.RepeatMonthly:
		when = fmt.Sprintf("monthly on day %d at %s", r.DueAt.Day(), when)
	case sameDay(r.DueAt, now):
		when = "today at " + when
	case sameDay(r.DueAt, now.AddDate(0, 0, 1)):
		when = "tomorrow at " + when
	default:
		when = r.DueAt.Format("Mon Jan 2") + " at " + when
	}
	return r.Title + " — " + when
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
