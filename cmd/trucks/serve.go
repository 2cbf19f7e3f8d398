package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-trucks-must-roll/internal/api"
	"github.com/Veraticus/the-trucks-must-roll/internal/certs"
	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/config"
	"github.com/Veraticus/the-trucks-must-roll/internal/export"
	"github.com/Veraticus/the-trucks-must-roll/internal/jobs"
	"github.com/Veraticus/the-trucks-must-roll/internal/plate"
	"github.com/Veraticus/the-trucks-must-roll/internal/process"
	"github.com/Veraticus/the-trucks-must-roll/internal/ws"
)

func serveCmd() *cobra.Command {
	var (
		noWorker bool
		useTLS   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and live queue feed",
		Long: `Serve the queue over HTTP (server.addr) with a websocket event feed at
/ws/queue. When redis.addr and backup.schedule are set, scheduled checkpoints
run on an asynq worker in the same process.

With --tls (or server.tls) the API is served over HTTPS using a self-signed
certificate kept in server.cert_dir and covering server.tls_hosts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Stopping API server").
				HandleInterrupts(cmd.Context())

			hub := ws.NewHub(slog.Default())
			a, err := openApp(ctx, process.WithPublisher(hub))
			if err != nil {
				return err
			}
			defer closeQuietly(a, "database")

			detector := plate.NewClient(viper.GetString("plate.url"), viper.GetDuration("plate.timeout"))
			opts := []api.Option{
				api.WithHub(hub),
				api.WithDetector(detector),
				api.WithJWTSecret(viper.GetString("auth.jwt_secret")),
				api.WithAllowedOrigins(viper.GetStringSlice("server.allowed_origins")),
			}
			if useTLS || viper.GetBool("server.tls") {
				manager := certs.NewFileManager(config.ExpandPath(viper.GetString("server.cert_dir")),
					viper.GetStringSlice("server.tls_hosts")...)
				cert, err := manager.GetOrCreateCertificate()
				if err != nil {
					return fmt.Errorf("failed to load TLS certificate: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Serving HTTPS; install "+manager.CertFile()+" on gate terminals"))
				opts = append(opts, api.WithTLS(cert))
			}
			server := api.NewServer(a.queue, a.sequencer, opts...)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				hub.Run(gctx)
				return nil
			})
			g.Go(func() error {
				return server.ListenAndServe(gctx, viper.GetString("server.addr"))
			})

			if !noWorker {
				if err := startWorker(gctx, g, a); err != nil {
					return err
				}
			}

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not run scheduled jobs in this process")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "serve HTTPS with a self-signed certificate")
	return cmd
}

// startWorker runs the asynq worker when a schedule and redis are configured.
func startWorker(ctx context.Context, g *errgroup.Group, a *app) error {
	sched := jobs.Schedule{
		Checkpoint: viper.GetString("backup.schedule"),
		Export:     viper.GetString("backup.export_schedule"),
	}
	if sched.Checkpoint == "" && sched.Export == "" {
		return nil
	}

	opt, ok := redisOpt()
	if !ok {
		slog.Warn("Scheduled jobs need redis.addr; skipping worker",
			"backup.schedule", sched.Checkpoint,
			"backup.export_schedule", sched.Export)
		return nil
	}

	checkpoints, err := a.db.NewCheckpointManager()
	if err != nil {
		return fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	exporter := export.NewExporter(config.ExpandPath(viper.GetString("export.dir")))
	handlers := jobs.NewHandlers(checkpoints, a.db, exporter, slog.Default())

	g.Go(func() error {
		return jobs.Run(ctx, opt, handlers, sched)
	})
	return nil
}
