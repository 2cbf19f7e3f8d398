package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trucks-must-roll/internal/sheets"
)

func clearSheetsEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH",
		"GOOGLE_SHEETS_CLIENT_ID",
		"GOOGLE_SHEETS_CLIENT_SECRET",
		"GOOGLE_SHEETS_REFRESH_TOKEN",
		"GOOGLE_SHEETS_SPREADSHEET_ID",
		"GOOGLE_SHEETS_SPREADSHEET_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TRUCKS_TEST_DIR", "/srv/trucks")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "data", "trucks.db"), ExpandPath("~/data/trucks.db"))
	assert.Equal(t, "/srv/trucks/trucks.db", ExpandPath("$TRUCKS_TEST_DIR/trucks.db"))
	assert.Equal(t, "/abs/path.db", ExpandPath("/abs/path.db"))
	assert.Equal(t, "/srv/trucks/exports", ExpandPath("/srv//trucks/exports/"))
	assert.Equal(t, MemoryDB, ExpandPath(MemoryDB))
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib/gate")
	assert.Equal(t, "/var/lib/gate/trucks", DataDir())
	assert.Equal(t, "/var/lib/gate/trucks/trucks.db", DataPath("trucks.db"))

	t.Setenv("XDG_DATA_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "trucks", "certs"), DataPath("certs"))
}

func TestLoadSheetsConfig_FromViper(t *testing.T) {
	clearSheetsEnv(t)
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("sheets.service_account_path", "/keys/sa.json")
	viper.Set("sheets.spreadsheet_name", "Gate Log")
	viper.Set("counter.timezone", "UTC")

	cfg, err := LoadSheetsConfig()
	require.NoError(t, err)
	assert.Equal(t, "/keys/sa.json", cfg.ServiceAccountPath)
	assert.Equal(t, "Gate Log", cfg.SpreadsheetName)
	assert.Equal(t, "Process Data", cfg.SheetTitle)
	assert.Equal(t, "UTC", cfg.TimeZone)
}

func TestLoadSheetsConfig_EnvFallback(t *testing.T) {
	clearSheetsEnv(t)
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GOOGLE_SHEETS_CLIENT_ID", "id")
	t.Setenv("GOOGLE_SHEETS_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_SHEETS_REFRESH_TOKEN", "refresh")
	t.Setenv("GOOGLE_SHEETS_SPREADSHEET_NAME", "From Env")

	cfg, err := LoadSheetsConfig()
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.ClientID)
	assert.Equal(t, "From Env", cfg.SpreadsheetName)
	assert.Equal(t, sheets.DefaultConfig().TimeZone, cfg.TimeZone)
}

func TestLoadSheetsConfig_NoAuth(t *testing.T) {
	clearSheetsEnv(t)
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadSheetsConfig()
	assert.Error(t, err)
}
