// Package process keeps the vehicle queue: WaitIn creates a record, WaitOut
// finishes it.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// Outcome reports what UpdateWaitOutEntry did.
type Outcome int

// WaitOut outcomes.
const (
	OutcomeFinished Outcome = iota
	OutcomeNotFound
	OutcomeAlreadyFinished
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAlreadyFinished:
		return "already_finished"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TicketGenerator issues ticket numbers for a category label.
type TicketGenerator interface {
	Generate(ctx context.Context, label string) (string, error)
}

// Store owns the process queue, newest record first.
//
// Changes to the queue are serialized on writeMu, which is held while a
// ticket is issued and persisted. Readers only take mu, so a slow counter
// backend never blocks listings.
type Store struct {
	seq      TicketGenerator
	repo     service.ProcessRepository
	pub      service.Publisher
	clock    func() time.Time
	location *time.Location
	detected string
	queue    []model.ProcessRecord
	writeMu  sync.Mutex
	mu       sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithRepository persists every created and finished record.
func WithRepository(repo service.ProcessRepository) Option {
	return func(s *Store) {
		s.repo = repo
	}
}

// WithPublisher announces queue changes.
func WithPublisher(pub service.Publisher) Option {
	return func(s *Store) {
		s.pub = pub
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLocation sets the timezone used for record dates and times.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewStore creates an empty Store.
func NewStore(seq TicketGenerator, opts ...Option) *Store {
	s := &Store{
		seq:      seq,
		clock:    time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory queue with the records held by the repository.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	n, err := s.reload(ctx)
	if err != nil {
		return err
	}

	slog.Debug("Loaded process queue", "records", n)
	return nil
}

// reload reads the repository into the queue. Callers must hold writeMu.
func (s *Store) reload(ctx context.Context) (int, error) {
	records, err := s.repo.ListProcesses(ctx, service.ProcessFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to load process queue: %w", err)
	}

	s.mu.Lock()
	s.queue = records
	s.mu.Unlock()
	return len(records), nil
}

// AddWaitInEntry records a vehicle arrival and returns the new record.
// The form is stored as submitted; an empty or unknown category draws from
// the default ticket series.
func (s *Store) AddWaitInEntry(ctx context.Context, form model.WaitInForm) (model.ProcessRecord, error) {
	if ctx == nil {
		return model.ProcessRecord{}, errors.New("context cannot be nil")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ticket, err := s.seq.Generate(ctx, form.Category)
	if err != nil {
		return model.ProcessRecord{}, fmt.Errorf("failed to issue ticket: %w", err)
	}

	now := s.now()
	record := model.ProcessRecord{
		ID:            uuid.New(),
		TicketNumber:  ticket,
		VehicleNumber: form.VehicleNumber,
		CreationDate:  now.Format(model.CreationDateLayout),
		ArrivalTime:   now.Format(model.ArrivalTimeLayout),
		CreatedAt:     now,
		Status:        model.StatusPending,
		WaitIn:        form,
	}

	if s.repo != nil {
		if err := s.repo.SaveProcess(ctx, &record); err != nil {
			return model.ProcessRecord{}, fmt.Errorf("failed to save process %s: %w", ticket, err)
		}
	}

	s.mu.Lock()
	s.queue = append([]model.ProcessRecord{record}, s.queue...)
	s.mu.Unlock()

	slog.Info("Vehicle waiting in",
		"ticket", ticket,
		"vehicle", record.VehicleNumber,
		"category", form.Category)

	s.publish(service.EventProcessCreated, record)
	return record.Clone(), nil
}

// UpdateWaitOutEntry finishes the newest record carrying ticket. Delivered
// bag counts are copied into the WaitIn delivery table by position and the
// full WaitOut form is attached. Unknown tickets and already finished
// records leave the queue untouched.
//
// With a repository, a ticket missing from memory is looked up again after
// reloading, and the record is only finished if its stored row is still
// pending. Another process sharing the database may have issued or
// finished it.
func (s *Store) UpdateWaitOutEntry(ctx context.Context, ticket string, waitOut model.WaitOutForm) (Outcome, error) {
	if ctx == nil {
		return OutcomeNotFound, errors.New("context cannot be nil")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, idx := s.lookup(ticket)
	if idx < 0 && s.repo != nil {
		if _, err := s.reload(ctx); err != nil {
			return OutcomeNotFound, err
		}
		current, idx = s.lookup(ticket)
	}
	if idx < 0 {
		slog.Warn("WaitOut for unknown ticket", "ticket", ticket)
		return OutcomeNotFound, nil
	}
	if current.IsFinished() {
		slog.Warn("WaitOut for finished ticket", "ticket", ticket)
		return OutcomeAlreadyFinished, nil
	}

	now := s.now()
	updated := current
	updated.WaitIn.DeliveryTable.MergeDelivered(waitOut.DeliveryTable)
	wo := waitOut
	updated.WaitOut = &wo
	updated.Status = model.StatusFinished
	updated.FinishedAt = &now

	if s.repo != nil {
		finished, err := s.repo.FinishProcess(ctx, &updated)
		if err != nil {
			return OutcomeNotFound, fmt.Errorf("failed to save process %s: %w", ticket, err)
		}
		if !finished {
			if _, err := s.reload(ctx); err != nil {
				return OutcomeNotFound, err
			}
			if _, idx := s.lookup(ticket); idx < 0 {
				slog.Warn("WaitOut for ticket removed elsewhere", "ticket", ticket)
				return OutcomeNotFound, nil
			}
			slog.Warn("WaitOut for ticket finished elsewhere", "ticket", ticket)
			return OutcomeAlreadyFinished, nil
		}
	}

	s.mu.Lock()
	s.queue[idx] = updated
	s.mu.Unlock()

	slog.Info("Vehicle waiting out",
		"ticket", ticket,
		"vehicle", updated.VehicleNumber,
		"delivered", updated.WaitIn.DeliveryTable.TotalDelivered())

	s.publish(service.EventProcessFinished, updated)
	return OutcomeFinished, nil
}

// ListAll returns a copy of the queue, newest first.
func (s *Store) ListAll() []model.ProcessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ProcessRecord, len(s.queue))
	for i, r := range s.queue {
		out[i] = r.Clone()
	}
	return out
}

// Filter returns the records with the given status, newest first.
// An empty status matches everything.
func (s *Store) Filter(status model.ProcessStatus) []model.ProcessRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ProcessRecord
	for _, r := range s.queue {
		if status == "" || r.Status == status {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Pending returns the vehicles still inside, newest first.
func (s *Store) Pending() []model.ProcessRecord {
	return s.Filter(model.StatusPending)
}

// Get returns the newest record carrying ticket.
func (s *Store) Get(ticket string) (model.ProcessRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(ticket)
	if idx < 0 {
		return model.ProcessRecord{}, false
	}
	return s.queue[idx].Clone(), true
}

// Len returns the number of records in the queue.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// DetectedVehicleNumber returns the last plate read by the detector.
func (s *Store) DetectedVehicleNumber() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detected
}

// SetDetectedVehicleNumber replaces the detected plate.
func (s *Store) SetDetectedVehicleNumber(number string) {
	s.mu.Lock()
	s.detected = number
	s.mu.Unlock()

	s.publish(service.EventVehicleDetected, map[string]string{"vehicle_number": number})
}

// InitialFormData returns a fresh WaitIn template stamped with the current time.
func (s *Store) InitialFormData() model.WaitInForm {
	return model.NewWaitInForm(s.now())
}

// lookup returns a copy of the newest record carrying ticket and its index,
// or -1. The index stays valid while the caller holds writeMu.
func (s *Store) lookup(ticket string) (model.ProcessRecord, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(ticket)
	if idx < 0 {
		return model.ProcessRecord{}, -1
	}
	return s.queue[idx].Clone(), idx
}

// indexOf scans from the head. Callers must hold mu.
func (s *Store) indexOf(ticket string) int {
	for i := range s.queue {
		if s.queue[i].TicketNumber == ticket {
			return i
		}
	}
	return -1
}

func (s *Store) now() time.Time {
	return s.clock().In(s.location)
}

func (s *Store) publish(eventType string, payload any) {
	if s.pub != nil {
		s.pub.Publish(eventType, payload)
	}
}
