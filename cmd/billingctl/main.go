package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/config"
	"github.com/fullmeo/aimastery-billing/pkg/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "billingctl",
	Short:         "Operate the AIMastery billing service",
	Long:          `billingctl syncs the plan catalog to Stripe, prints revenue reports and tails billing notifications.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(syncPlansCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads the service configuration and a stderr logger so command
// output on stdout stays machine readable.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
