package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/config"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
	"github.com/Veraticus/the-trucks-must-roll/internal/redisstore"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
	"github.com/Veraticus/the-trucks-must-roll/internal/storage"
	"github.com/Veraticus/the-trucks-must-roll/internal/ticket"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// initStorage opens the SQLite database and runs migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = config.DataPath("trucks.db")
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadLocation resolves counter.timezone. "Local" and "" mean the host zone.
func loadLocation() (*time.Location, error) {
	name := viper.GetString("counter.timezone")
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: counter.timezone %q: %w", common.ErrInvalidConfig, name, err)
	}
	return loc, nil
}

// counterStore picks the key-value backend for the ticket counter.
func counterStore(ctx context.Context, db *storage.SQLiteStorage) (service.KeyValueStore, io.Closer, error) {
	backend := strings.ToLower(viper.GetString("counter.backend"))
	switch backend {
	case "", "sqlite":
		return db, io.NopCloser(nil), nil
	case "redis":
		addr := viper.GetString("redis.addr")
		if addr == "" {
			return nil, nil, fmt.Errorf("%w: redis.addr is required for the redis counter backend", common.ErrMissingConfig)
		}
		rs, err := redisstore.Dial(ctx, addr, viper.GetString("redis.password"), viper.GetInt("redis.db"))
		if err != nil {
			return nil, nil, err
		}
		return rs, rs, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown counter.backend %q", common.ErrInvalidConfig, backend)
	}
}

// app bundles the components a command works with.
type app struct {
	db        *storage.SQLiteStorage
	sequencer *ticket.Sequencer
	queue     *process.Store
	location  *time.Location
	closers   []io.Closer
}

// appOption customizes the process store built by openApp.
type appOption = process.Option

// openApp opens storage, builds the sequencer and loads the queue.
func openApp(ctx context.Context, opts ...appOption) (*app, error) {
	loc, err := loadLocation()
	if err != nil {
		return nil, err
	}

	db, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	kv, kvCloser, err := counterStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	seq := ticket.NewSequencer(kv, ticket.WithLocation(loc))

	storeOpts := append([]process.Option{
		process.WithRepository(db),
		process.WithLocation(loc),
	}, opts...)
	queue := process.NewStore(seq, storeOpts...)
	if err := queue.Load(ctx); err != nil {
		_ = kvCloser.Close()
		_ = db.Close()
		return nil, err
	}

	return &app{
		db:        db,
		sequencer: seq,
		queue:     queue,
		location:  loc,
		closers:   []io.Closer{kvCloser, db},
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// redisOpt returns the asynq connection settings, or false when redis is not configured.
func redisOpt() (asynq.RedisClientOpt, bool) {
	addr := viper.GetString("redis.addr")
	if addr == "" {
		return asynq.RedisClientOpt{}, false
	}
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	}, true
}

// parseBagCounts reads a delivery table column. It accepts either six
// comma-separated counts in brand order ("10,0,5,0,0,0") or brand=count
// pairs ("Bulk=5,Sanstha=10"). Brands not named stay at zero.
func parseBagCounts(list string) ([model.BrandCount]int, error) {
	var counts [model.BrandCount]int
	list = strings.TrimSpace(list)
	if list == "" {
		return counts, nil
	}

	parts := strings.Split(list, ",")
	if !strings.Contains(list, "=") {
		if len(parts) != model.BrandCount {
			return counts, fmt.Errorf("expected %d bag counts, got %d", model.BrandCount, len(parts))
		}
		for i, p := range parts {
			n, err := parseCount(p)
			if err != nil {
				return counts, fmt.Errorf("bag count for %s: %w", model.Brands[i], err)
			}
			counts[i] = n
		}
		return counts, nil
	}

	for _, p := range parts {
		brand, value, ok := strings.Cut(p, "=")
		if !ok {
			return counts, fmt.Errorf("expected brand=count, got %q", p)
		}
		idx, known := model.BrandIndex(brand)
		if !known {
			return counts, fmt.Errorf("unknown brand %q (brands: %s)", strings.TrimSpace(brand), strings.Join(model.Brands[:], ", "))
		}
		n, err := parseCount(value)
		if err != nil {
			return counts, fmt.Errorf("bag count for %s: %w", model.Brands[idx], err)
		}
		counts[idx] = n
	}
	return counts, nil
}

// parseStatus validates a --status flag. Matching is case-insensitive and
// the empty string means no filter.
func parseStatus(s string) (model.ProcessStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "pending":
		return model.StatusPending, nil
	case "finished":
		return model.StatusFinished, nil
	default:
		return "", common.NewUserError("--status must be Pending or Finished", nil)
	}
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", strings.TrimSpace(s))
	}
	if n < 0 {
		return 0, fmt.Errorf("count cannot be negative: %d", n)
	}
	return n, nil
}

func parseDurationFlag(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("--%s must be a positive duration like 2s", name), err)
	}
	return d, nil
}

// closeQuietly logs close errors for deferred cleanup.
func closeQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		slog.Warn("Failed to close "+what, "error", err)
	}
}
