package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/ainews/internal/app"
	"github.com/deusflow/ainews/internal/config"
	"github.com/deusflow/ainews/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig    string
	flagOnce      bool
	flagReport    string
	flagSendEmail bool
	flagTelegram  bool
	flagDebug     bool
)

var rootCmd = &cobra.Command{
	Use:           "ainews",
	Short:         "AI news digest",
	Long:          "ainews collects AI news from feeds, Reddit, X/Twitter mirrors and Discord, ranks it and delivers a daily report.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "fetch once and print the top items")
	rootCmd.Flags().StringVar(&flagReport, "report", "", "write the HTML report to this path")
	rootCmd.Flags().BoolVar(&flagSendEmail, "send-email", false, "email the report to all recipients")
	rootCmd.Flags().BoolVar(&flagTelegram, "telegram", false, "post headlines to Telegram")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(recipientsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ainews %s (commit: %s)\n", version, commit)
	},
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.Init(flagDebug || cfg.Debug)
	return cfg, nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The monitoring endpoints live only as long as this run.
	if cfg.Monitoring.Enabled {
		if srv := startMonitoringServer(cfg.Monitoring.Port); srv != nil {
			defer srv.Close()
		}
	}

	flags := app.Flags{
		Once:       flagOnce,
		ReportPath: flagReport,
		SendEmail:  flagSendEmail,
		Telegram:   flagTelegram || (cfg.Telegram.Enabled && (flagOnce || flagReport != "" || flagSendEmail)),
	}

	err = app.New(cfg, cmd.OutOrStdout()).Run(ctx, flags)
	if err == nil {
		return nil
	}
	if errors.Is(err, app.ErrConfig) {
		return err
	}
	// Delivery problems are logged and reflected in /health, not the exit code.
	logger.Error("run finished with errors", "error", err)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
