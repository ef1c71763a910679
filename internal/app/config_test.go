package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("ROLES_FILE", "roles.yaml")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 720*time.Hour, cfg.LedgerTTL)
	assert.Equal(t, "Europe/Moscow", cfg.TZName)
	assert.False(t, cfg.SheetsEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ROLES_FILE=from-file.yaml\nBOT_ENABLED=false\nLEDGER_TTL=2h\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("LEDGER_TTL", "3h")
	defer os.Unsetenv("ROLES_FILE")
	defer os.Unsetenv("BOT_ENABLED")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file.yaml", cfg.RolesFile)
	assert.False(t, cfg.BotEnabled)
	assert.Equal(t, 3*time.Hour, cfg.LedgerTTL, "environment wins over the file")
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]Config{
		"bot without token":         {BotEnabled: true},
		"sheets without credential": {SheetsSpreadsheetID: "sheet"},
		"negative ttl":              {LedgerTTL: -time.Second},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, cfg.Validate())
		})
	}

	ok := Config{BotEnabled: true, TelegramToken: "t", SheetsSpreadsheetID: "sheet", SheetsEndpoint: "http://127.0.0.1:9000"}
	require.NoError(t, ok.Validate())
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
