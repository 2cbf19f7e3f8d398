package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Schedule lists the cron specs for periodic tasks. Empty specs are not registered.
type Schedule struct {
	Checkpoint string
	Export     string
	Prefix     string
}

// Registrar registers periodic tasks. Satisfied by *asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// NewServeMux routes task types to h.
func NewServeMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAutoCheckpoint, h.HandleAutoCheckpoint)
	mux.HandleFunc(TypeExportReport, h.HandleExportReport)
	return mux
}

// RegisterSchedule adds the periodic tasks in sched to r and returns how many were registered.
func RegisterSchedule(r Registrar, sched Schedule) (int, error) {
	registered := 0

	if sched.Checkpoint != "" {
		task, err := NewAutoCheckpointTask(sched.Prefix)
		if err != nil {
			return registered, err
		}
		id, err := r.Register(sched.Checkpoint, task, asynq.Queue("default"))
		if err != nil {
			return registered, fmt.Errorf("failed to schedule checkpoints %q: %w", sched.Checkpoint, err)
		}
		slog.Info("Scheduled checkpoints", "cron", sched.Checkpoint, "entry", id)
		registered++
	}

	if sched.Export != "" {
		task, err := NewExportReportTask("")
		if err != nil {
			return registered, err
		}
		id, err := r.Register(sched.Export, task, asynq.Queue("low"))
		if err != nil {
			return registered, fmt.Errorf("failed to schedule exports %q: %w", sched.Export, err)
		}
		slog.Info("Scheduled exports", "cron", sched.Export, "entry", id)
		registered++
	}

	return registered, nil
}

// Run starts the scheduler and worker against redisOpt and blocks until ctx is done.
func Run(ctx context.Context, redisOpt asynq.RedisClientOpt, h *Handlers, sched Schedule) error {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
		Logger:   newAsynqLogger(h.logger),
		LogLevel: asynq.WarnLevel,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   newAsynqLogger(h.logger),
		LogLevel: asynq.WarnLevel,
	})
	if _, err := RegisterSchedule(scheduler, sched); err != nil {
		return err
	}

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	if err := srv.Start(NewServeMux(h)); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer srv.Shutdown()

	<-ctx.Done()
	return nil
}

// Enqueue submits task for immediate processing.
func Enqueue(ctx context.Context, redisOpt asynq.RedisClientOpt, task *asynq.Task) (*asynq.TaskInfo, error) {
	client := asynq.NewClient(redisOpt)
	defer func() { _ = client.Close() }()

	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return info, nil
}

// asynqLogger adapts slog to asynq.Logger.
type asynqLogger struct {
	logger *slog.Logger
}

func newAsynqLogger(l *slog.Logger) *asynqLogger {
	if l == nil {
		l = slog.Default()
	}
	return &asynqLogger{logger: l.With("component", "asynq")}
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.logger.Error(fmt.Sprint(args...)) }
