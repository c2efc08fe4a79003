// Command ledgerctl operates on the local ledger and its remote backups
// without running the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/colmadogutierrez/debtbook/internal/bootstrap"
	"github.com/colmadogutierrez/debtbook/pkg/config"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Inspect, import and back up the debt ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "ledgerctl",
		Level:       logger.ParseLevel(logLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg, nil
}

// withApp bootstraps the services for one command and flushes the ledger
// before returning.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, logg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	app, err := bootstrap.New(ctx, cfg, logg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, app)
	if closeErr := app.Close(context.Background()); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
