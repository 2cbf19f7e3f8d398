// Package storage provides the data persistence layer for the trucks application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidStatus  = errors.New("invalid process status")
	ErrInvalidProcess = errors.New("invalid process")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateStatus accepts the two lifecycle states, or empty for "any".
func validateStatus(status model.ProcessStatus, allowEmpty bool) error {
	switch status {
	case model.StatusPending, model.StatusFinished:
		return nil
	case "":
		if allowEmpty {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// validateProcess checks the invariants a stored record must hold.
func validateProcess(record *model.ProcessRecord) error {
	if record == nil {
		return fmt.Errorf("%w: process", ErrNilParameter)
	}
	if record.ID == uuid.Nil {
		return fmt.Errorf("%w: missing ID", ErrInvalidProcess)
	}
	if record.TicketNumber == "" {
		return fmt.Errorf("%w: missing ticket number", ErrInvalidProcess)
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation time", ErrInvalidProcess)
	}
	if err := validateStatus(record.Status, false); err != nil {
		return err
	}
	if record.IsFinished() != (record.WaitOut != nil) {
		return fmt.Errorf("%w: wait-out form must be present exactly when finished", ErrInvalidProcess)
	}
	return nil
}
