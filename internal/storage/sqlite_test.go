package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close storage: %v", err)
		}
	}
}

func newPendingRecord(ticket, vehicle string, createdAt time.Time) model.ProcessRecord {
	form := model.NewWaitInForm(createdAt)
	form.VehicleNumber = vehicle
	form.DeliveryTable[0].RequestedBag = 10
	return model.ProcessRecord{
		ID:            uuid.New(),
		TicketNumber:  ticket,
		VehicleNumber: vehicle,
		CreationDate:  createdAt.Format(model.CreationDateLayout),
		ArrivalTime:   createdAt.Format(model.ArrivalTimeLayout),
		CreatedAt:     createdAt,
		Status:        model.StatusPending,
		WaitIn:        form,
	}
}

func TestSQLiteStorage_Migrations(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	var version int
	require.NoError(t, store.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op.
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"kv_store", "processes", "checkpoint_metadata"} {
		var n int
		err := store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s missing", table)
	}
}

func TestSQLiteStorage_MemoryDatabase(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))

	_, err = store.NewCheckpointManager()
	assert.Error(t, err)
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_KeyValue(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, service.ErrKeyNotFound)

	err = store.Update(ctx, "counter", func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte("1"), nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, "counter", func(current []byte) ([]byte, error) {
		return append(current, '2'), nil
	})
	require.NoError(t, err)

	value, err := store.Load(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "12", string(value))
}

func TestSQLiteStorage_UpdateErrorWritesNothing(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "k", func([]byte) ([]byte, error) {
		return []byte("keep"), nil
	}))

	boom := errors.New("boom")
	err := store.Update(ctx, "k", func([]byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	value, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(value))
}

func TestSQLiteStorage_KeyValueValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	//nolint:staticcheck // testing nil context handling
	_, err := store.Load(nil, "k")
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = store.Load(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyString)

	err = store.Update(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrNilParameter)
}

func TestSQLiteStorage_ConcurrentUpdates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	const workers = 10
	const perWorker = 20

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				err := store.Update(ctx, "n", func(current []byte) ([]byte, error) {
					return append(current, 'x'), nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	value, err := store.Load(ctx, "n")
	require.NoError(t, err)
	assert.Len(t, value, workers*perWorker)
}
