// Command sevaconnect runs the SevaConnect API server and its maintenance
// and session commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sevaconnect-backend/pkg/app"
	"sevaconnect-backend/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:           "sevaconnect",
	Short:         "SevaConnect donation platform backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.AddCommand(serveCmd, migrateCmd, alertsCmd, loginCmd, logoutCmd, whoamiCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApp 打开应用上下文执行 fn，结束后关闭
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
