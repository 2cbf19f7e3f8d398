package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trucks-must-roll/internal/auth"
	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/storage"
)

const testSecret = "gate-secret"

// testEnv writes a config file that points every path into a temp dir.
func testEnv(t *testing.T) (configPath, dir string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")

	cfg := strings.Join([]string{
		"database:",
		"  path: " + filepath.Join(dir, "trucks.db"),
		"export:",
		"  dir: " + filepath.Join(dir, "exports"),
		"counter:",
		"  timezone: UTC",
		"auth:",
		"  jwt_secret: " + testSecret,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0600))
	return configPath, dir
}

// runTrucks executes the root command with a fresh viper state.
func runTrucks(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath, "--log-level", "error"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_WaitInWaitOutFlow(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "in", "--vehicle", "NW LB-4455", "--category", "Bulk", "--requested", "Bulk=40")
	require.NoError(t, err)
	assert.Contains(t, out, "B-01")
	assert.Contains(t, out, "NW LB-4455")

	out, err = runTrucks(t, cfg, "", "in", "--vehicle", "WP CAB 1234", "--category", "Bulk")
	require.NoError(t, err)
	assert.Contains(t, out, "B-02")

	out, err = runTrucks(t, cfg, "", "in", "--vehicle", "SP KA 9001", "--category", "Cement")
	require.NoError(t, err)
	assert.Contains(t, out, model.DefaultPrefix+"-01")
	assert.Contains(t, out, "not in the ticket table")

	out, err = runTrucks(t, cfg, "", "out", "B-01", "--delivered", "Bulk=38", "--departure-time", "11:15", "--total-issue", "2 short")
	require.NoError(t, err)
	assert.Contains(t, out, "38 of 40 bags delivered")

	_, err = runTrucks(t, cfg, "", "out", "B-01")
	var userErr *common.UserError
	require.ErrorAs(t, err, &userErr)
	assert.ErrorIs(t, err, common.ErrAlreadyFinished)

	_, err = runTrucks(t, cfg, "", "out", "B-99")
	assert.ErrorIs(t, err, common.ErrProcessNotFound)

	out, err = runTrucks(t, cfg, "", "out", " xx-1 ", "--departure-time", "11:20")
	require.NoError(t, err)
	assert.Contains(t, out, model.DefaultPrefix+"-01")

	_, err = runTrucks(t, cfg, "", "out", "B02")
	require.ErrorAs(t, err, &userErr)
	assert.ErrorIs(t, err, model.ErrInvalidTicketNumber)

	out, err = runTrucks(t, cfg, "", "list", "--json", "--status", "finished")
	require.NoError(t, err)
	var finished []model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &finished))
	require.Len(t, finished, 2)
	assert.Equal(t, model.DefaultPrefix+"-01", finished[0].TicketNumber)
	finished = finished[1:]
	assert.Equal(t, "B-01", finished[0].TicketNumber)
	require.NotNil(t, finished[0].WaitOut)
	assert.Equal(t, "11:15", finished[0].WaitOut.DepartureTime)
	assert.Equal(t, 40, finished[0].WaitIn.DeliveryTable[4].RequestedBag)
	assert.Equal(t, 38, finished[0].WaitIn.DeliveryTable[4].DeliveryBag)

	out, err = runTrucks(t, cfg, "", "list", "--json")
	require.NoError(t, err)
	var all []model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Len(t, all, 3)
	assert.Equal(t, model.DefaultPrefix+"-01", all[0].TicketNumber, "newest first")

	out, err = runTrucks(t, cfg, "", "list", "--json", "--match", "cab1234")
	require.NoError(t, err)
	var matched []model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &matched))
	require.Len(t, matched, 1)
	assert.Equal(t, "B-02", matched[0].TicketNumber)

	_, err = runTrucks(t, cfg, "", "list", "--status", "gone")
	assert.Error(t, err)

	out, err = runTrucks(t, cfg, "", "counters", "--json")
	require.NoError(t, err)
	var state model.DailyCounterState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, 2, state.Counts["B"])
	assert.Equal(t, 1, state.Counts[model.DefaultPrefix])

	out, err = runTrucks(t, cfg, "", "show", "B-02", "--json")
	require.NoError(t, err)
	var rec model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Nil(t, rec.WaitOut)

	_, err = runTrucks(t, cfg, "", "show", "S-01")
	assert.ErrorIs(t, err, common.ErrProcessNotFound)
}

func TestCommands_WaitInRequiresVehicle(t *testing.T) {
	cfg, _ := testEnv(t)

	_, err := runTrucks(t, cfg, "", "in", "--category", "Bulk")
	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)

	_, err = runTrucks(t, cfg, "", "in", "--vehicle", "X", "--requested", "1,2")
	assert.ErrorAs(t, err, &userErr)
}

func TestCommands_Form(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "form")
	require.NoError(t, err)

	var form model.WaitInForm
	require.NoError(t, json.Unmarshal([]byte(out), &form))
	assert.Equal(t, model.DefaultCategory, form.Category)
	assert.Equal(t, model.AlcoholLow, form.DriverAlcoholTest)
	assert.Equal(t, model.Brands[0], form.DeliveryTable[0].Brand)
}

func TestCommands_ExportWorkbook(t *testing.T) {
	cfg, dir := testEnv(t)

	_, err := runTrucks(t, cfg, "", "export", "xlsx", "--no-progress")
	assert.Error(t, err, "empty queue has nothing to export")

	_, err = runTrucks(t, cfg, "", "in", "--vehicle", "NW LB-4455", "--category", "Sanstha", "--requested", "Sanstha=12")
	require.NoError(t, err)

	out, err := runTrucks(t, cfg, "", "export", "xlsx", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 records")
	assert.Contains(t, out, "Bags requested: 12")

	files, err := filepath.Glob(filepath.Join(dir, "exports", "*.xlsx"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	out, err = runTrucks(t, cfg, "", "export", "list")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Base(files[0]))

	out, err = runTrucks(t, cfg, "", "export", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Token Number=S-01")
	assert.Contains(t, out, "Vehicle Number=NW LB-4455")
	assert.Contains(t, out, "1 rows")

	_, err = runTrucks(t, cfg, "", "export", "xlsx", "--enqueue")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestCommands_Checkpoints(t *testing.T) {
	cfg, _ := testEnv(t)

	_, err := runTrucks(t, cfg, "", "in", "--vehicle", "NW LB-4455", "--category", "Bulk")
	require.NoError(t, err)

	out, err := runTrucks(t, cfg, "", "checkpoint", "create", "--tag", "morning", "--description", "before rush")
	require.NoError(t, err)
	assert.Contains(t, out, "Created checkpoint morning")

	out, err = runTrucks(t, cfg, "", "checkpoint", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "morning")
	assert.Contains(t, out, "before rush")

	out, err = runTrucks(t, cfg, "", "checkpoint", "verify", "morning")
	require.NoError(t, err)
	assert.Contains(t, out, "intact")

	_, err = runTrucks(t, cfg, "", "in", "--vehicle", "WP CAB 1234", "--category", "Bulk")
	require.NoError(t, err)

	out, err = runTrucks(t, cfg, "n\n", "checkpoint", "restore", "morning")
	require.NoError(t, err)
	assert.Contains(t, out, "Restore cancelled")

	_, err = runTrucks(t, cfg, "", "checkpoint", "restore", "morning", "--force")
	require.NoError(t, err)

	out, err = runTrucks(t, cfg, "", "list", "--json")
	require.NoError(t, err)
	var records []model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1, "restore drops the entry added after the checkpoint")

	out, err = runTrucks(t, cfg, "", "counters", "--json")
	require.NoError(t, err)
	var state model.DailyCounterState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, 1, state.Counts["B"], "counter is restored with the queue")

	_, err = runTrucks(t, cfg, "", "checkpoint", "create", "--tag", "morning")
	assert.Error(t, err)

	_, err = runTrucks(t, cfg, "", "checkpoint", "verify", "../etc")
	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)

	out, err = runTrucks(t, cfg, "yes\n", "checkpoint", "delete", "morning")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted checkpoint morning")

	_, err = runTrucks(t, cfg, "", "checkpoint", "verify", "morning")
	assert.ErrorIs(t, err, storage.ErrCheckpointNotFound)
}

func TestCommands_Reset(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to reset")

	for _, vehicle := range []string{"NW LB-4455", "WP CAB 1234"} {
		_, err = runTrucks(t, cfg, "", "in", "--vehicle", vehicle, "--category", "Bulk")
		require.NoError(t, err)
	}

	out, err = runTrucks(t, cfg, "n\n", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "2 process records (2 pending)")
	assert.Contains(t, out, "Reset cancelled.")

	out, err = runTrucks(t, cfg, "", "reset", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 process records")
	assert.Contains(t, out, "auto-reset-")

	out, err = runTrucks(t, cfg, "", "list", "--json")
	require.NoError(t, err)
	var records []model.ProcessRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Empty(t, records)

	out, err = runTrucks(t, cfg, "", "in", "--vehicle", "SP KA 9001", "--category", "Bulk")
	require.NoError(t, err)
	assert.Contains(t, out, "B-03", "counters survive a plain reset")

	_, err = runTrucks(t, cfg, "", "reset", "--force", "--counters")
	require.NoError(t, err)

	out, err = runTrucks(t, cfg, "", "in", "--vehicle", "SP KA 9001", "--category", "Bulk")
	require.NoError(t, err)
	assert.Contains(t, out, "B-01")

	out, err = runTrucks(t, cfg, "", "checkpoint", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "auto-reset-")
}

func TestCommands_SheetsAuthNeedsCredentials(t *testing.T) {
	cfg, _ := testEnv(t)

	_, err := runTrucks(t, cfg, "", "export", "sheets-auth")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestCommands_TokenIssue(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "token", "issue", "--operator", "gate-1", "--ttl", "1h")
	require.NoError(t, err)

	token := strings.TrimSpace(strings.SplitN(out, "\n", 2)[0])
	claims, err := auth.ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", claims.Operator)

	_, err = runTrucks(t, cfg, "", "token", "issue")
	assert.Error(t, err)
}

func TestCommands_ConfigShowMasksSecrets(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, testSecret)
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "timezone: UTC")
}

func TestCommands_Version(t *testing.T) {
	cfg, _ := testEnv(t)

	out, err := runTrucks(t, cfg, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "trucks dev\n", out)
}
