package reminders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicedeck/internal/domain"
)

// Store keeps reminders in memory and mirrors every mutation to a JSON file,
// so the dashboard survives restarts. All methods are safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger

	items map[string]*domain.Reminder
}

func NewStore(path string, log zerolog.Logger) (*Store, error) {
	store := &Store{
		path:  path,
		log:   log.With().Str("component", "reminder_store").Logger(),
		items: make(map[string]*domain.Reminder),
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	contents, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read reminders file %q: %w", s.path, err)
	}

	var stored []*domain.Reminder
	if err := json.Unmarshal(contents, &stored); err != nil {
		return fmt.Errorf("failed to parse reminders file %q: %w", s.path, err)
	}
	for _, r := range stored {
		s.items[r.ID] = r
	}
	s.log.Debug().Int("count", len(stored)).Msg("loaded reminders")
	return nil
}

// persist writes the current set to disk. Callers hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	all := s.sortedLocked()
	contents, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create reminders directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, contents, 0o644); err != nil {
		return fmt.Errorf("failed to write reminders file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) Add(r *domain.Reminder) (*domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *r
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.items[stored.ID] = &stored
	if err := s.persist(); err != nil {
		delete(s.items, stored.ID)
		return nil, err
	}
	s.log.Info().Str("id", stored.ID).Str("title", stored.Title).Time("due", stored.DueAt).Msg("reminder added")
	return &stored, nil
}

// List returns all reminders ordered by due time, earliest first.
func (s *Store) List() []*domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []*domain.Reminder {
	all := make([]*domain.Reminder, 0, len(s.items))
	for _, r := range s.items {
		copied := *r
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].DueAt.Equal(all[j].DueAt) {
			return all[i].DueAt.Before(all[j].DueAt)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

func (s *Store) Complete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok {
		return fmt.Errorf("unknown reminder %q", id)
	}
	r.Done = true
	return s.persist()
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, ok := s.items[id]
	if !ok {
		return fmt.Errorf("unknown reminder %q", id)
	}
	delete(s.items, id)
	if err := s.persist(); err != nil {
		s.items[id] = removed
		return err
	}
	return nil
}

// Due returns reminders whose time has arrived and that have not been
// notified yet.
func (s *Store) Due(now time.Time) []*domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Reminder
	for _, r := range s.items {
		if r.Done || r.Notified {
			continue
		}
		if !r.DueAt.After(now) {
			copied := *r
			due = append(due, &copied)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	return due
}

// MarkNotified records that a reminder fired. Repeating reminders roll
// forward to their next occurrence instead.
func (s *Store) MarkNotified(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[id]
	if !ok {
		return fmt.Errorf("unknown reminder %q", id)
	}
	if next, ok := nextOccurrence(r.DueAt, r.Repeat, now); ok {
		r.DueAt = next
		r.Notified = false
	} else {
		r.Notified = true
	}
	return s.persist()
}

func nextOccurrence(due time.Time, repeat domain.RepeatRule, now time.Time) (time.Time, bool) {
	if repeat == domain.RepeatNone {
		return time.Time{}, false
	}
	next := due
	for !next.After(now) {
		switch repeat {
		case domain.RepeatDaily:
			next = next.AddDate(0, 0, 1)
		case domain.RepeatWeekly:
			next = next.AddDate(0, 0, 7)
		case domain.RepeatMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			return time.Time{}, false
		}
	}
	return next, true
}
