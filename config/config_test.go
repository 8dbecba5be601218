package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/rent"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, BackendSQLite, cfg.Backend.Type)
	assert.Equal(t, 6, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay.Duration)

	rules, err := cfg.EngineRules()
	require.NoError(t, err)
	want := rent.DefaultRules()
	assert.True(t, want.PenaltyFee.Equal(rules.PenaltyFee))
	rules.PenaltyFee = want.PenaltyFee
	assert.Equal(t, want, rules)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	// GIVEN: A file setting some keys
	path := writeConfig(t, `
[server]
port = 9090

[backend]
type = "xlsx"
path = "./rent.xlsx"

[rules]
penalty_fee = "KSh 2,500"
max_auto_periods = 6
formulas = true

[retry]
base_delay = "250ms"

[log]
level = "debug"
`)

	// WHEN: Loading it
	cfg, err := Load(path)

	// THEN: Set keys win, the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, BackendXLSX, cfg.Backend.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.RetrySchedule().BaseDelay)
	assert.Equal(t, 6, cfg.RetrySchedule().MaxRetries)

	rules, err := cfg.EngineRules()
	require.NoError(t, err)
	assert.Equal(t, "2500", rules.PenaltyFee.String())
	assert.Equal(t, 6, rules.MaxAutoPeriods)
	assert.True(t, rules.Formulas)
	assert.Equal(t, 5, rules.DueDay)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "[server]\nprot = 1\n"},
		{"bad backend", "[backend]\ntype = \"postgres\"\n"},
		{"missing path", "[backend]\ntype = \"sqlite\"\npath = \"\"\n"},
		{"bad fee", "[rules]\npenalty_fee = \"lots\"\n"},
		{"bad due day", "[rules]\ndue_day = 31\n"},
		{"bad delay", "[retry]\nbase_delay = \"soon\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Development = true
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
