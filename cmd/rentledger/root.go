package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/rent-ledger/api"
	"github.com/warp/rent-ledger/config"
	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/generic/store"
	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/store/sqlite"
	"github.com/warp/rent-ledger/store/xlsx"
)

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config.toml")
	rootCmd.PersistentFlags().String("backend", "", "Override backend type (memory, sqlite, xlsx)")
	rootCmd.PersistentFlags().String("path", "", "Override backend path")
}

var rootCmd = &cobra.Command{
	Use:   "rentledger",
	Short: "Reconcile rent payments into tenant ledgers",
	Long: `rentledger applies received rent payments to per-tenant monthly ledgers,
computing penalties and running balances and pre-filling future months
from overpayments.`,
	SilenceUsage: true,
}

// loadConfig reads --config and applies the backend overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.Backend.Type = v
	}
	if v, _ := cmd.Flags().GetString("path"); v != "" {
		cfg.Backend.Path = v
	}
	return cfg, cfg.Validate()
}

// app is everything a command needs, built from config.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	retrier  *generic.Retrier
	engine   *rent.Engine
	workbook generic.Workbook
	registry rent.Registry
	history  api.HistoryReader
	closers  []func() error
}

func newApp(cfg config.Config) (*app, error) {
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	rules, err := cfg.EngineRules()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.retrier = generic.NewRetrier(cfg.RetrySchedule(), logger)
	a.engine, err = rent.NewEngine(rules, rent.WithLogger(logger), rent.WithRetrier(a.retrier))
	if err != nil {
		return nil, err
	}

	switch cfg.Backend.Type {
	case config.BackendMemory:
		a.workbook = store.NewMemory()
	case config.BackendSQLite:
		db, err := sqlite.New(cfg.Backend.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		a.workbook, a.registry, a.history = db, db, db
		a.closers = append(a.closers, db.Close)
	case config.BackendXLSX:
		wb, err := xlsx.Open(cfg.Backend.Path)
		if err != nil {
			return nil, fmt.Errorf("open xlsx backend: %w", err)
		}
		a.workbook = wb
		a.closers = append(a.closers, wb.Close)
	}

	logger.Info("backend ready",
		zap.String("type", cfg.Backend.Type),
		zap.String("path", cfg.Backend.Path),
		zap.Bool("formulas", rules.Formulas),
		zap.Bool("auto_consume", rules.AutoConsume))
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close backend", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
