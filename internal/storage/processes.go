package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// SaveProcess inserts a record, or replaces the row with the same ID while
// keeping its original insertion order.
func (s *SQLiteStorage) SaveProcess(ctx context.Context, record *model.ProcessRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProcess(record); err != nil {
		return err
	}

	waitIn, err := json.Marshal(record.WaitIn)
	if err != nil {
		return fmt.Errorf("failed to encode wait-in form: %w", err)
	}

	var waitOut sql.NullString
	if record.WaitOut != nil {
		data, marshalErr := json.Marshal(record.WaitOut)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode wait-out form: %w", marshalErr)
		}
		waitOut = sql.NullString{String: string(data), Valid: true}
	}

	var finishedAt sql.NullTime
	if record.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *record.FinishedAt, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processes (
			id, ticket_number, vehicle_number, creation_date, arrival_time,
			status, wait_in, wait_out, created_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ticket_number = excluded.ticket_number,
			vehicle_number = excluded.vehicle_number,
			creation_date = excluded.creation_date,
			arrival_time = excluded.arrival_time,
			status = excluded.status,
			wait_in = excluded.wait_in,
			wait_out = excluded.wait_out,
			finished_at = excluded.finished_at
	`,
		record.ID.String(),
		record.TicketNumber,
		record.VehicleNumber,
		record.CreationDate,
		record.ArrivalTime,
		string(record.Status),
		string(waitIn),
		waitOut,
		record.CreatedAt,
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save process %s: %w", record.TicketNumber, err)
	}
	return nil
}

// FinishProcess writes a finished record only while its row is still
// pending, so two processes sharing the database cannot both finish it.
func (s *SQLiteStorage) FinishProcess(ctx context.Context, record *model.ProcessRecord) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateProcess(record); err != nil {
		return false, err
	}
	if record.Status != model.StatusFinished || record.WaitOut == nil || record.FinishedAt == nil {
		return false, fmt.Errorf("%w: finishing %s needs a wait-out form and finish time", ErrInvalidProcess, record.TicketNumber)
	}

	waitIn, err := json.Marshal(record.WaitIn)
	if err != nil {
		return false, fmt.Errorf("failed to encode wait-in form: %w", err)
	}
	waitOut, err := json.Marshal(record.WaitOut)
	if err != nil {
		return false, fmt.Errorf("failed to encode wait-out form: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE processes
		SET status = ?, wait_in = ?, wait_out = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`,
		string(model.StatusFinished),
		string(waitIn),
		string(waitOut),
		*record.FinishedAt,
		record.ID.String(),
		string(model.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish process %s: %w", record.TicketNumber, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to finish process %s: %w", record.TicketNumber, err)
	}
	return n == 1, nil
}

// ListProcesses returns stored records, newest first.
func (s *SQLiteStorage) ListProcesses(ctx context.Context, filter service.ProcessFilter) ([]model.ProcessRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateStatus(filter.Status, true); err != nil {
		return nil, err
	}

	query := `
		SELECT id, ticket_number, vehicle_number, creation_date, arrival_time,
		       status, wait_in, wait_out, created_at, finished_at
		FROM processes`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.ProcessRecord
	for rows.Next() {
		record, scanErr := scanProcess(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate processes: %w", err)
	}
	return records, nil
}

// DeleteProcesses removes every stored record.
func (s *SQLiteStorage) DeleteProcesses(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processes`); err != nil {
		return fmt.Errorf("failed to delete processes: %w", err)
	}
	return nil
}

// CountProcesses returns the number of stored records per status.
func (s *SQLiteStorage) CountProcesses(ctx context.Context) (map[model.ProcessStatus]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM processes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[model.ProcessStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan process count: %w", err)
		}
		counts[model.ProcessStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanProcess(rows *sql.Rows) (model.ProcessRecord, error) {
	var (
		record     model.ProcessRecord
		id         string
		status     string
		waitIn     string
		waitOut    sql.NullString
		createdAt  time.Time
		finishedAt sql.NullTime
	)

	if err := rows.Scan(
		&id,
		&record.TicketNumber,
		&record.VehicleNumber,
		&record.CreationDate,
		&record.ArrivalTime,
		&status,
		&waitIn,
		&waitOut,
		&createdAt,
		&finishedAt,
	); err != nil {
		return record, fmt.Errorf("failed to scan process: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return record, fmt.Errorf("process %s has invalid id: %w", record.TicketNumber, err)
	}
	record.ID = parsed
	record.Status = model.ProcessStatus(status)
	record.CreatedAt = createdAt

	if err := json.Unmarshal([]byte(waitIn), &record.WaitIn); err != nil {
		return record, fmt.Errorf("process %s has unreadable wait-in form: %w", record.TicketNumber, err)
	}
	if waitOut.Valid {
		var wo model.WaitOutForm
		if err := json.Unmarshal([]byte(waitOut.String), &wo); err != nil {
			return record, fmt.Errorf("process %s has unreadable wait-out form: %w", record.TicketNumber, err)
		}
		record.WaitOut = &wo
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		record.FinishedAt = &t
	}

	return record, nil
}
