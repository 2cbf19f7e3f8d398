package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/config"
)

var (
	cfgFile string
	version = "dev"
	rootCmd = newRootCmd()
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trucks",
		Short: "🚚 Gate queue and ticketing for delivery vehicles",
		Long: `the-trucks-must-roll: registers delivery vehicles as they arrive at the gate,
issues daily per-category tickets, and reconciles bag deliveries when they leave.

The trucks must roll!`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/trucks/config.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	cmd.PersistentFlags().String("db", "", "database path (overrides database.path)")

	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", cmd.PersistentFlags().Lookup("db"))

	cmd.AddCommand(waitInCmd())
	cmd.AddCommand(waitOutCmd())
	cmd.AddCommand(listCmd())
	cmd.AddCommand(showCmd())
	cmd.AddCommand(formCmd())
	cmd.AddCommand(countersCmd())
	cmd.AddCommand(detectCmd())
	cmd.AddCommand(boardCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(checkpointCmd())
	cmd.AddCommand(resetCmd())
	cmd.AddCommand(tokenCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) {
			fmt.Fprintln(os.Stderr, userErr.UserMessage)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// setDefaults registers every configuration key with its default.
func setDefaults() {
	viper.SetDefault("database.path", config.DataPath("trucks.db"))
	viper.SetDefault("counter.backend", "sqlite")
	viper.SetDefault("counter.timezone", "Local")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("plate.url", "http://localhost:5000")
	viper.SetDefault("plate.timeout", "30s")
	viper.SetDefault("server.addr", ":8081")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	viper.SetDefault("server.tls", false)
	viper.SetDefault("server.tls_hosts", []string{})
	viper.SetDefault("server.cert_dir", config.DataPath("certs"))
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_ttl", "12h")
	viper.SetDefault("export.dir", config.DataPath("exports"))
	viper.SetDefault("sheets.token_file", config.DataPath("sheets-token.json"))
	viper.SetDefault("sheets.callback_addr", "localhost:8080")
	viper.SetDefault("sheets.auth_timeout", "5m")
	viper.SetDefault("backup.schedule", "")
	viper.SetDefault("backup.export_schedule", "")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

func initConfig(_ *cobra.Command, _ []string) error {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		viper.AddConfigPath(fmt.Sprintf("%s/.config/trucks", home))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRUCKS")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := setupLogging(); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func setupLogging() error {
	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	return common.SetupLogger(level, viper.GetString("logging.format"))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trucks %s\n", version)
		},
	}
}
