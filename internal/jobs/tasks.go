// Package jobs runs background maintenance on an asynq worker: scheduled
// database checkpoints and spreadsheet exports.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
	"github.com/Veraticus/the-trucks-must-roll/internal/storage"
)

// Task types.
const (
	TypeAutoCheckpoint = "checkpoint:auto"
	TypeExportReport   = "export:report"
)

// DefaultCheckpointPrefix tags scheduled checkpoints.
const DefaultCheckpointPrefix = "scheduled"

// AutoCheckpointPayload is the payload of a TypeAutoCheckpoint task.
type AutoCheckpointPayload struct {
	Prefix string `json:"prefix"`
}

// ExportReportPayload is the payload of a TypeExportReport task.
type ExportReportPayload struct {
	Status model.ProcessStatus `json:"status,omitempty"`
}

// Checkpointer takes automatic database checkpoints.
type Checkpointer interface {
	AutoCheckpoint(ctx context.Context, prefix string) (*storage.CheckpointInfo, error)
}

// NewAutoCheckpointTask builds a checkpoint task.
func NewAutoCheckpointTask(prefix string) (*asynq.Task, error) {
	if prefix == "" {
		prefix = DefaultCheckpointPrefix
	}
	payload, err := json.Marshal(AutoCheckpointPayload{Prefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint payload: %w", err)
	}
	return asynq.NewTask(TypeAutoCheckpoint, payload), nil
}

// NewExportReportTask builds an export task. An empty status exports every record.
func NewExportReportTask(status model.ProcessStatus) (*asynq.Task, error) {
	payload, err := json.Marshal(ExportReportPayload{Status: status})
	if err != nil {
		return nil, fmt.Errorf("failed to encode export payload: %w", err)
	}
	return asynq.NewTask(TypeExportReport, payload), nil
}

// Handlers executes jobs. Either dependency may be nil, in which case the
// matching task is skipped without retry.
type Handlers struct {
	checkpoints Checkpointer
	records     service.ProcessRepository
	reports     service.ReportWriter
	logger      *slog.Logger
}

// NewHandlers creates task handlers.
func NewHandlers(checkpoints Checkpointer, records service.ProcessRepository, reports service.ReportWriter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		checkpoints: checkpoints,
		records:     records,
		reports:     reports,
		logger:      logger,
	}
}

// HandleAutoCheckpoint takes a checkpoint and prunes old automatic ones.
func (h *Handlers) HandleAutoCheckpoint(ctx context.Context, t *asynq.Task) error {
	var payload AutoCheckpointPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid checkpoint payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.checkpoints == nil {
		return fmt.Errorf("checkpoints unavailable: %w", asynq.SkipRetry)
	}
	if payload.Prefix == "" {
		payload.Prefix = DefaultCheckpointPrefix
	}

	info, err := h.checkpoints.AutoCheckpoint(ctx, payload.Prefix)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}

	h.logger.Info("Scheduled checkpoint created",
		"id", info.ID,
		"processes", info.Processes,
		"pending", info.Pending,
		"size", info.FileSize)
	return nil
}

// HandleExportReport writes the stored records to the configured report.
func (h *Handlers) HandleExportReport(ctx context.Context, t *asynq.Task) error {
	var payload ExportReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid export payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.records == nil || h.reports == nil {
		return fmt.Errorf("report export unavailable: %w", asynq.SkipRetry)
	}

	records, err := h.records.ListProcesses(ctx, service.ProcessFilter{Status: payload.Status})
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	if len(records) == 0 {
		h.logger.Info("Scheduled export skipped, no records", "status", payload.Status)
		return nil
	}

	summary, err := h.reports.Write(ctx, records)
	if err != nil {
		// The next scheduled run picks up anything a permanent failure missed.
		if !common.IsRetryable(err) && !errors.Is(err, common.ErrMaxRetries) {
			return fmt.Errorf("failed to write report: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("failed to write report: %w", err)
	}

	h.logger.Info("Scheduled export written",
		"location", summary.Location,
		"rows", summary.RowsWritten)
	return nil
}
