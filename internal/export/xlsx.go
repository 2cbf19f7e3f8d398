package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// SheetName is the worksheet holding the exported rows.
const SheetName = "Process Data"

const (
	filePrefix     = "process_data_"
	fileExt        = ".xlsx"
	timestampFmt   = "20060102_150405"
	maxColumnWidth = 50
	headerColor    = "4472C4"
)

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no process records to export")

// Exporter writes process records to timestamped xlsx files.
type Exporter struct {
	clock    func() time.Time
	progress func(done, total int)
	dir      string
}

var _ service.ReportWriter = (*Exporter)(nil)

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the time used in file names.
func WithClock(clock func() time.Time) Option {
	return func(e *Exporter) {
		e.clock = clock
	}
}

// WithProgress reports each written row.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Exporter) {
		e.progress = fn
	}
}

// NewExporter writes into dir, creating it on first export.
func NewExporter(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dir returns the export directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// Write exports records, newest first as given, into a new workbook.
func (e *Exporter) Write(ctx context.Context, records []model.ProcessRecord) (*service.ReportSummary, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if err := os.MkdirAll(e.dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	columns := Columns()
	widths := make([]int, len(columns))
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
		widths[i] = len(c)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := Row(r)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
		for j, v := range row {
			if n := len(fmt.Sprint(v)); n > widths[j] {
				widths[j] = n
			}
		}
		if e.progress != nil {
			e.progress(i+1, len(records))
		}
	}

	if err := e.style(f, widths, len(records)+1); err != nil {
		return nil, err
	}

	path := filepath.Join(e.dir, filePrefix+e.clock().Format(timestampFmt)+fileExt)
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %w", err)
	}

	pending, finished, requested, delivered := Summarize(records)
	slog.Info("Exported processes", "path", path, "rows", len(records))

	return &service.ReportSummary{
		Location:      path,
		RowsWritten:   len(records),
		Pending:       pending,
		Finished:      finished,
		BagsRequested: requested,
		BagsDelivered: delivered,
	}, nil
}

func (e *Exporter) style(f *excelize.File, widths []int, lastRow int) error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	bodyStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
		Border:    border,
	})
	if err != nil {
		return fmt.Errorf("failed to create body style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(widths))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if lastRow > 1 {
		if err := f.SetCellStyle(SheetName, "A2", fmt.Sprintf("%s%d", lastCol, lastRow), bodyStyle); err != nil {
			return fmt.Errorf("failed to style rows: %w", err)
		}
	}

	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, float64(min(w+2, maxColumnWidth))); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}
	return nil
}

// ExportFile describes a previously written export.
type ExportFile struct {
	ModTime time.Time
	Name    string
	Path    string
	Size    int64
}

// ListExports returns the workbooks in the export directory, newest first.
// A missing directory yields an empty list.
func (e *Exporter) ListExports() ([]ExportFile, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var files []ExportFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, ExportFile{
			Name:    entry.Name(),
			Path:    filepath.Join(e.dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name > files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// LatestExport returns the newest workbook, or false when there is none.
func (e *Exporter) LatestExport() (ExportFile, bool, error) {
	files, err := e.ListExports()
	if err != nil || len(files) == 0 {
		return ExportFile{}, false, err
	}
	return files[0], true, nil
}

// ReadRows loads an exported workbook back as header-keyed rows.
func ReadRows(path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := SheetName
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				m[col] = row[i]
			} else {
				m[col] = ""
			}
		}
		out = append(out, m)
	}
	return out, nil
}
