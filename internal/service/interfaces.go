// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

// ErrKeyNotFound is returned by KeyValueStore.Load for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// UpdateFunc computes the new value for a key from its current value.
// current is nil when the key is absent. Implementations may call it more
// than once when the key changes underneath them; only the value returned by
// the last call is written.
type UpdateFunc func(current []byte) ([]byte, error)

// KeyValueStore is the durable key-value area backing the ticket counter.
type KeyValueStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	// Update atomically replaces the value of key with fn's result.
	// If fn returns an error nothing is written.
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// ProcessFilter narrows a process listing.
type ProcessFilter struct {
	Status model.ProcessStatus
	Limit  int
}

// ProcessRepository persists process records.
type ProcessRepository interface {
	// SaveProcess inserts or replaces the record with the same ID.
	SaveProcess(ctx context.Context, record *model.ProcessRecord) error
	// FinishProcess stores a finished record only if its row is still
	// pending. It reports false when the row is missing or already finished.
	FinishProcess(ctx context.Context, record *model.ProcessRecord) (bool, error)
	// ListProcesses returns records newest first.
	ListProcesses(ctx context.Context, filter ProcessFilter) ([]model.ProcessRecord, error)
	DeleteProcesses(ctx context.Context) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	KeyValueStore
	ProcessRepository

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// PlateDetector reads licence plates from images.
type PlateDetector interface {
	CheckHealth(ctx context.Context) error
	DetectFromFile(ctx context.Context, path string) (*model.DetectionResult, error)
	DetectBase64(ctx context.Context, image string) (*model.DetectionResult, error)
}

// Publisher fans queue events out to live listeners.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Event types published on queue changes.
const (
	EventProcessCreated  = "process.created"
	EventProcessFinished = "process.finished"
	EventVehicleDetected = "vehicle.detected"
)

// ReportWriter writes process records to an external report.
type ReportWriter interface {
	Write(ctx context.Context, records []model.ProcessRecord) (*ReportSummary, error)
}

// ReportSummary describes a written report.
type ReportSummary struct {
	Location      string
	RowsWritten   int
	Pending       int
	Finished      int
	BagsRequested int
	BagsDelivered int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	// Retryable reports whether err is worth another attempt. Nil retries
	// everything not marked permanent with common.RetryableError.
	Retryable    func(err error) bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
