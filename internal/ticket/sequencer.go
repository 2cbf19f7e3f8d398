// Package ticket issues per-category, per-day ticket numbers.
package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// ErrPersist wraps failures to store the updated counter.
var ErrPersist = errors.New("failed to persist ticket counter")

// dayLayout is the calendar date recorded alongside the counters.
const dayLayout = "2006-01-02"

// Sequencer hands out ticket numbers of the form "<prefix>-<NN>".
// Counters restart at 1 on every new calendar day and are kept in a
// KeyValueStore so they survive restarts.
type Sequencer struct {
	store    service.KeyValueStore
	clock    func() time.Time
	location *time.Location
	key      string
	mu       sync.Mutex
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Sequencer) {
		s.clock = clock
	}
}

// WithLocation sets the timezone whose midnight starts a new day.
func WithLocation(loc *time.Location) Option {
	return func(s *Sequencer) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithKey overrides the durable key holding the counter state.
func WithKey(key string) Option {
	return func(s *Sequencer) {
		if key != "" {
			s.key = key
		}
	}
}

// NewSequencer creates a Sequencer backed by store.
func NewSequencer(store service.KeyValueStore, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:    store,
		clock:    time.Now,
		location: time.Local,
		key:      model.CounterKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the sequencer's timezone.
func (s *Sequencer) Today() string {
	return s.clock().In(s.location).Format(dayLayout)
}

// Generate issues the next ticket number for a category label.
// Unknown labels share the default prefix and its counter. The counter is
// persisted before the number is returned; if persisting fails no number is
// issued and the counter is left as it was.
func (s *Sequencer) Generate(ctx context.Context, label string) (string, error) {
	if ctx == nil {
		return "", errors.New("context cannot be nil")
	}

	prefix := model.CategoryCode(label)
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()

	var next int
	err := s.store.Update(ctx, s.key, func(current []byte) ([]byte, error) {
		state := decodeState(current, today)
		state.Counts[prefix]++
		next = state.Counts[prefix]
		return json.Marshal(state)
	})
	if err != nil {
		return "", fmt.Errorf("%w for %s: %w", ErrPersist, prefix, err)
	}

	slog.Debug("Issued ticket number",
		"prefix", prefix,
		"sequence", next,
		"day", today)

	return model.FormatTicketNumber(prefix, next), nil
}

// Reset starts today's counters over from zero.
func (s *Sequencer) Reset(ctx context.Context) error {
	today := s.Today()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Update(ctx, s.key, func([]byte) ([]byte, error) {
		return json.Marshal(model.NewDailyCounterState(today))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	slog.Info("Reset ticket counters", "day", today)
	return nil
}

// Counts returns today's counters. A stored state from an earlier day
// reads as empty.
func (s *Sequencer) Counts(ctx context.Context) (model.DailyCounterState, error) {
	today := s.Today()

	raw, err := s.store.Load(ctx, s.key)
	if err != nil && !errors.Is(err, service.ErrKeyNotFound) {
		return model.DailyCounterState{}, fmt.Errorf("failed to load ticket counters: %w", err)
	}
	return decodeState(raw, today), nil
}

// decodeState reads the stored counter state. Missing, malformed or stale
// state is replaced with a fresh state for today.
func decodeState(raw []byte, today string) model.DailyCounterState {
	if len(raw) == 0 {
		return model.NewDailyCounterState(today)
	}

	var state model.DailyCounterState
	if err := json.Unmarshal(raw, &state); err != nil {
		slog.Warn("Discarding unreadable ticket counter state", "error", err)
		return model.NewDailyCounterState(today)
	}
	if state.Date != today {
		return model.NewDailyCounterState(today)
	}
	if state.Counts == nil {
		state.Counts = make(map[string]int)
	}
	return state
}
