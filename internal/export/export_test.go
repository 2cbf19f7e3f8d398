package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/testutil"
)

func sampleRecords() []model.ProcessRecord {
	now := time.Date(2024, 9, 2, 14, 5, 0, 0, time.UTC)

	pending := testutil.NewRecord("B-01").
		Vehicle("WP LK-9876").
		ArrivedAt(now).
		Driver("Nimal").
		Requested(model.BrandBulk, 40).
		Build()

	done := testutil.NewRecord("S-01").
		Vehicle("WP CAB-1234").
		ArrivedAt(now.Add(-time.Hour)).
		Insured().
		Requested(model.BrandSanstha, 10).
		Finished(now.Add(time.Hour), "15:10").
		Delivered(model.BrandSanstha, 8).
		Notes("2", "two torn").
		Build()

	return []model.ProcessRecord{pending, done}
}

func TestColumns(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, 18+12+3)
	assert.Equal(t, "Token Number", cols[0])
	assert.Equal(t, "Helper PPE Number", cols[17])
	assert.Equal(t, "Sanstha Requested", cols[18])
	assert.Equal(t, "Sanstha Delivered", cols[19])
	assert.Equal(t, "Scamale Delivered", cols[29])
	assert.Equal(t, "Notes", cols[len(cols)-1])
}

func TestRow(t *testing.T) {
	records := sampleRecords()

	pending := Row(records[0])
	require.Len(t, pending, len(Columns()))
	assert.Equal(t, "B-01", pending[0])
	assert.Equal(t, "Pending", pending[4])
	assert.Equal(t, "Nimal", pending[5])
	assert.Equal(t, "low", pending[9])
	assert.Equal(t, 40, pending[18+8])
	assert.Equal(t, "", pending[len(pending)-1])

	done := Row(records[1])
	assert.Equal(t, true, done[15])
	assert.Equal(t, 10, done[18])
	assert.Equal(t, 8, done[19])
	assert.Equal(t, "15:10", done[len(done)-3])
	assert.Equal(t, "two torn", done[len(done)-1])
}

func TestSummarize(t *testing.T) {
	pending, finished, requested, delivered := Summarize(sampleRecords())
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, finished)
	assert.Equal(t, 50, requested)
	assert.Equal(t, 8, delivered)
}

func TestExporter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	at := time.Date(2024, 9, 2, 18, 30, 15, 0, time.UTC)

	var progress []int
	e := NewExporter(dir,
		WithClock(func() time.Time { return at }),
		WithProgress(func(done, _ int) { progress = append(progress, done) }))

	summary, err := e.Write(context.Background(), sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "process_data_20240902_183015.xlsx"), summary.Location)
	assert.Equal(t, 2, summary.RowsWritten)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, []int{1, 2}, progress)

	rows, err := ReadRows(summary.Location)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "B-01", rows[0]["Token Number"])
	assert.Equal(t, "40", rows[0]["Bulk Requested"])
	assert.Equal(t, "", rows[0]["Departure Time"])
	assert.Equal(t, "WP CAB-1234", rows[1]["Vehicle Number"])
	assert.Equal(t, "8", rows[1]["Sanstha Delivered"])
	assert.Equal(t, "two torn", rows[1]["Notes"])

	f, err := excelize.OpenFile(summary.Location)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	styleID, err := f.GetCellStyle(SheetName, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
	assert.Equal(t, "pattern", style.Fill.Type)

	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.LessOrEqual(t, width, float64(maxColumnWidth))
}

func TestExporter_WriteEmpty(t *testing.T) {
	_, err := NewExporter(t.TempDir()).Write(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoRecords)
}

func TestExporter_ListAndLatest(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(filepath.Join(dir, "missing"))

	files, err := e.ListExports()
	require.NoError(t, err)
	assert.Empty(t, files)
	_, ok, err := e.LatestExport()
	require.NoError(t, err)
	assert.False(t, ok)

	e = NewExporter(dir)
	old := filepath.Join(dir, "process_data_20240101_000000.xlsx")
	newer := filepath.Join(dir, "process_data_20240102_000000.xlsx")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.Chtimes(old, time.Now().Add(-time.Hour), time.Now().Add(-time.Hour)))

	files, err = e.ListExports()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer, files[0].Path)

	latest, ok, err := e.LatestExport()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "process_data_20240102_000000.xlsx", latest.Name)
}
