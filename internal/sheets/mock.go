package sheets

import (
	"context"
	"sync"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// MockWriter is a mock implementation of ReportWriter for testing.
type MockWriter struct {
	WriteFunc      func(ctx context.Context, records []model.ProcessRecord) (*service.ReportSummary, error)
	WriteCalls     []WriteCall
	LastRecords    []model.ProcessRecord
	WriteCallCount int
	mu             sync.Mutex
}

var _ service.ReportWriter = (*MockWriter)(nil)

// WriteCall represents a single call to Write.
type WriteCall struct {
	Error   error
	Records []model.ProcessRecord
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		WriteCalls: make([]WriteCall, 0),
	}
}

// Write implements the ReportWriter interface.
func (m *MockWriter) Write(ctx context.Context, records []model.ProcessRecord) (*service.ReportSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCallCount++
	m.LastRecords = records

	summary := &service.ReportSummary{Location: "mock", RowsWritten: len(records)}
	var err error
	if m.WriteFunc != nil {
		summary, err = m.WriteFunc(ctx, records)
	}

	m.WriteCalls = append(m.WriteCalls, WriteCall{
		Records: records,
		Error:   err,
	})

	return summary, err
}

// GetWriteCalls returns a copy of all write calls.
func (m *MockWriter) GetWriteCalls() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]WriteCall, len(m.WriteCalls))
	copy(calls, m.WriteCalls)
	return calls
}

// SetWriteError configures the mock to return an error on every Write call.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, []model.ProcessRecord) (*service.ReportSummary, error) {
		return nil, err
	}
}
