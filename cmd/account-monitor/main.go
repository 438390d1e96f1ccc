package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ktl-XV/account-monitor/internal/accounts"
	"github.com/Ktl-XV/account-monitor/internal/catalog"
	"github.com/Ktl-XV/account-monitor/internal/config"
	"github.com/Ktl-XV/account-monitor/internal/metrics"
	"github.com/Ktl-XV/account-monitor/internal/monitor"
	"github.com/Ktl-XV/account-monitor/internal/notify"
	"github.com/Ktl-XV/account-monitor/internal/registry"
	"github.com/Ktl-XV/account-monitor/internal/server"
)

const adminAddr = ":3030"

func main() {
	root := &cobra.Command{
		Use:          "account-monitor",
		Short:        "Watch accounts across EVM chains and push ntfy notifications",
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor",
		RunE:  runMonitor,
	}
	runCmd.Flags().String("log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	global, chains, err := config.Load()
	if err != nil {
		return err
	}

	level := global.LogLevel
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenCatalog, err := catalog.Open(global.TokenDBPath, logger)
	if err != nil {
		return err
	}

	reg := registry.New()
	if global.StaticAccountsPath != "" {
		if _, err := accounts.LoadStatic(global.StaticAccountsPath, reg, logger); err != nil {
			return err
		}
	}
	metrics.RegistrySize.Set(float64(reg.Len()))

	notifier := notify.New(global, logger)
	if err := notifier.Send(ctx, notify.Startup(reg.Len())); err != nil {
		logger.Error("startup notification failed", zap.Error(err))
	}

	adminSrv := server.New(reg, logger)
	go func() {
		if err := adminSrv.Run(ctx, adminAddr); err != nil {
			logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	supervisor := monitor.NewSupervisor(chains, reg, tokenCatalog, notifier, logger, global.DebugBlock)

	logger.Info("account monitor started",
		zap.Int("chains", len(chains)),
		zap.Int("accounts", reg.Len()),
		zap.Bool("notifications_disabled", global.NtfyDisabled),
	)

	err = supervisor.Run(ctx)
	if errors.Is(err, monitor.ErrDebugDone) {
		return nil
	}
	return err
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
