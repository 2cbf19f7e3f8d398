package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

func TestParseBagCounts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [model.BrandCount]int
		wantErr bool
	}{
		{name: "empty", input: "", want: [model.BrandCount]int{}},
		{name: "positional", input: "10,0,5,0,0,1", want: [model.BrandCount]int{10, 0, 5, 0, 0, 1}},
		{name: "positional with spaces", input: " 1, 2 ,3,4,5,6 ", want: [model.BrandCount]int{1, 2, 3, 4, 5, 6}},
		{name: "named", input: "Bulk=5,Sanstha=10", want: [model.BrandCount]int{10, 0, 0, 0, 5, 0}},
		{name: "named case-insensitive", input: "red flow=3", want: [model.BrandCount]int{0, 0, 0, 3, 0, 0}},
		{name: "too few positional", input: "1,2,3", wantErr: true},
		{name: "negative", input: "Bulk=-1", wantErr: true},
		{name: "not a number", input: "Bulk=lots", wantErr: true},
		{name: "unknown brand", input: "Cement=4", wantErr: true},
		{name: "missing equals in named list", input: "Bulk=4,7", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBagCounts(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatus(t *testing.T) {
	for input, want := range map[string]model.ProcessStatus{
		"":         "",
		"Pending":  model.StatusPending,
		"pending":  model.StatusPending,
		"FINISHED": model.StatusFinished,
	} {
		got, err := parseStatus(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := parseStatus("Gone")
	var userErr *common.UserError
	assert.ErrorAs(t, err, &userErr)
}

func TestParseAlcohol(t *testing.T) {
	level, err := parseAlcohol("high")
	require.NoError(t, err)
	assert.Equal(t, model.AlcoholHigh, level)

	_, err = parseAlcohol("medium")
	assert.Error(t, err)
}

func TestParseDurationFlag(t *testing.T) {
	d, err := parseDurationFlag("refresh", "500ms")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	for _, bad := range []string{"soon", "0s", "-1s"} {
		_, err := parseDurationFlag("refresh", bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadLocation(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("counter.timezone", "Local")
	loc, err := loadLocation()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	viper.Set("counter.timezone", "Asia/Colombo")
	loc, err = loadLocation()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Colombo", loc.String())

	viper.Set("counter.timezone", "Mars/Olympus")
	_, err = loadLocation()
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestCounterStore_UnknownBackend(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("counter.backend", "etcd")

	_, _, err := counterStore(t.Context(), nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)

	viper.Set("counter.backend", "redis")
	_, _, err = counterStore(t.Context(), nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestMatchVehicles(t *testing.T) {
	records := []model.ProcessRecord{
		{TicketNumber: "B-01", VehicleNumber: "NW LB-4455"},
		{TicketNumber: "S-01", VehicleNumber: "WP CAB 1234"},
	}

	got, err := matchVehicles(records, "^NW")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B-01", got[0].TicketNumber)

	got, err = matchVehicles(records, "CAB1234")
	require.NoError(t, err)
	require.Len(t, got, 1, "separators are ignored on the second pass")
	assert.Equal(t, "S-01", got[0].TicketNumber)

	_, err = matchVehicles(records, "([")
	assert.Error(t, err)
}

func TestMaskSecrets(t *testing.T) {
	settings := map[string]any{
		"auth":  map[string]any{"jwt_secret": "hunter2", "token_ttl": "12h"},
		"redis": map[string]any{"password": "", "addr": "localhost:6379"},
	}

	masked := maskSecrets(settings, "")

	authSection := masked["auth"].(map[string]any)
	assert.Equal(t, "********", authSection["jwt_secret"])
	assert.Equal(t, "12h", authSection["token_ttl"])
	assert.Equal(t, "", masked["redis"].(map[string]any)["password"], "empty secrets stay empty")
	assert.Equal(t, "hunter2", settings["auth"].(map[string]any)["jwt_secret"], "input is not modified")
}

func TestFormatExportRow(t *testing.T) {
	row := map[string]string{"Zeta": "z", "Vehicle Number": "NW LB-4455", "Token Number": "B-01", "Notes": ""}
	line := formatExportRow(row)
	assert.Equal(t, "Token Number=B-01  Vehicle Number=NW LB-4455  Zeta=z", line)
}
