/*
Package config loads rentledger settings from a TOML file.

PURPOSE:
  One file configures the HTTP server, which backend holds the ledgers,
  the business rules, the backoff schedule and logging. Every key is
  optional; Default() supplies the rest.

EXAMPLE:
  [server]
  host = "127.0.0.1"
  port = 8080

  [backend]
  type = "sqlite"          # memory | sqlite | xlsx
  path = "./data/ledgers.db"

  [rules]
  due_day = 5
  grace_days = 2
  penalty_fee = "3000"
  auto_consume = true
  max_auto_periods = 24
  formulas = false

  [retry]
  max_retries = 6
  base_delay = "1s"

  [log]
  level = "info"
  development = false
*/
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/rent-ledger/generic"
	"github.com/warp/rent-ledger/rent"
)

// Backend types
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendXLSX   = "xlsx"
)

// Config is the full settings tree.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Rules   RulesConfig   `toml:"rules"`
	Retry   RetryConfig   `toml:"retry"`
	Log     LogConfig     `toml:"log"`
}

type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type BackendConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

// RulesConfig mirrors rent.Rules with file-friendly types.
type RulesConfig struct {
	DueDay         int    `toml:"due_day"`
	GraceDays      int    `toml:"grace_days"`
	PenaltyFee     string `toml:"penalty_fee"`
	AutoConsume    bool   `toml:"auto_consume"`
	MaxAutoPeriods int    `toml:"max_auto_periods"`
	Formulas       bool   `toml:"formulas"`
	Rebalance      bool   `toml:"rebalance"`
	DefaultComment string `toml:"default_comment"`
	AutoComment    string `toml:"auto_comment"`
}

type RetryConfig struct {
	MaxRetries int      `toml:"max_retries"`
	BaseDelay  Duration `toml:"base_delay"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration decodes TOML strings like "1s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	r := rent.DefaultRules()
	retry := generic.DefaultRetryConfig()
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:3000"},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Backend: BackendConfig{
			Type: BackendSQLite,
			Path: "./data/ledgers.db",
		},
		Rules: RulesConfig{
			DueDay:         r.DueDay,
			GraceDays:      r.GraceDays,
			PenaltyFee:     r.PenaltyFee.String(),
			AutoConsume:    r.AutoConsume,
			MaxAutoPeriods: r.MaxAutoPeriods,
			Formulas:       r.Formulas,
			Rebalance:      r.Rebalance,
			DefaultComment: r.DefaultComment,
			AutoComment:    r.AutoComment,
		},
		Retry: RetryConfig{
			MaxRetries: retry.MaxRetries,
			BaseDelay:  Duration{retry.BaseDelay},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings nothing could run with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0..65535, got %d", c.Server.Port)
	}
	switch c.Backend.Type {
	case BackendMemory:
	case BackendSQLite, BackendXLSX:
		if c.Backend.Path == "" {
			return fmt.Errorf("backend.path is required for %s", c.Backend.Type)
		}
	default:
		return fmt.Errorf("backend.type must be memory, sqlite or xlsx, got %q", c.Backend.Type)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay.Duration <= 0 {
		return fmt.Errorf("retry.base_delay must be positive")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	_, err := c.EngineRules()
	return err
}

// EngineRules converts the [rules] table into validated rent.Rules.
func (c Config) EngineRules() (rent.Rules, error) {
	fee, ok := generic.ParseAmount(c.Rules.PenaltyFee)
	if !ok {
		return rent.Rules{}, fmt.Errorf("rules.penalty_fee: not an amount: %q", c.Rules.PenaltyFee)
	}
	r := rent.DefaultRules()
	r.DueDay = c.Rules.DueDay
	r.GraceDays = c.Rules.GraceDays
	r.PenaltyFee = fee
	r.AutoConsume = c.Rules.AutoConsume
	r.MaxAutoPeriods = c.Rules.MaxAutoPeriods
	r.Formulas = c.Rules.Formulas
	r.Rebalance = c.Rules.Rebalance
	r.DefaultComment = c.Rules.DefaultComment
	r.AutoComment = c.Rules.AutoComment
	if err := r.Validate(); err != nil {
		return rent.Rules{}, fmt.Errorf("rules: %w", err)
	}
	return r, nil
}

// RetrySchedule converts the [retry] table.
func (c Config) RetrySchedule() generic.RetryConfig {
	return generic.RetryConfig{MaxRetries: c.Retry.MaxRetries, BaseDelay: c.Retry.BaseDelay.Duration}
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NewLogger builds the zap logger described by [log].
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
