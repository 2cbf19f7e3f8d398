package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/the-trucks-must-roll/internal/common"
	"github.com/Veraticus/the-trucks-must-roll/internal/export"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// headerRows is the number of rows above the column header.
const headerRows = 4

// Writer implements the ReportWriter interface for Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	clock   func() time.Time
	config  Config
}

var _ service.ReportWriter = (*Writer)(nil)

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Create the Sheets service
	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		config:  config,
		service: service,
		logger:  logger,
		clock:   time.Now,
	}, nil
}

// Write replaces the sheet contents with the given records.
func (w *Writer) Write(ctx context.Context, records []model.ProcessRecord) (*service.ReportSummary, error) {
	if len(records) == 0 {
		return nil, export.ErrNoRecords
	}

	w.logger.Info("starting sheet export", "records", len(records))

	// Get or create spreadsheet
	spreadsheetID, sheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	// Clear existing data
	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return nil, fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	values := prepareReportData(records, w.clock())

	// Write data in batches with retry
	retryOpts := service.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, values)
	}, retryOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	// Apply formatting if enabled
	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			_, batchErr := w.service.Spreadsheets.BatchUpdate(spreadsheetID, formattingRequest(sheetID, len(values))).Context(ctx).Do()
			return batchErr
		}, retryOpts)
		if err != nil {
			// Don't fail the whole operation if formatting fails
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	pending, finished, requested, delivered := export.Summarize(records)
	w.logger.Info("sheet export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(values))

	return &service.ReportSummary{
		Location:      "https://docs.google.com/spreadsheets/d/" + spreadsheetID,
		RowsWritten:   len(records),
		Pending:       pending,
		Finished:      finished,
		BagsRequested: requested,
		BagsDelivered: delivered,
	}, nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		// Use service account authentication
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		// Use OAuth2 authentication
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet returns the spreadsheet and the ID of the process sheet.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, int64, error) {
	if w.config.SpreadsheetID != "" {
		existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", 0, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		for _, sh := range existing.Sheets {
			if sh.Properties != nil && sh.Properties.Title == w.config.SheetTitle {
				return existing.SpreadsheetId, sh.Properties.SheetId, nil
			}
		}
		return "", 0, fmt.Errorf("spreadsheet %s has no sheet named %q", w.config.SpreadsheetID, w.config.SheetTitle)
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
		Sheets: []*sheets.Sheet{
			{
				Properties: &sheets.SheetProperties{
					Title: w.config.SheetTitle,
				},
			},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	var sheetID int64
	if len(created.Sheets) > 0 && created.Sheets[0].Properties != nil {
		sheetID = created.Sheets[0].Properties.SheetId
	}
	return created.SpreadsheetId, sheetID, nil
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	rng := fmt.Sprintf("'%s'", w.config.SheetTitle)
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// prepareReportData lays out a short summary followed by one row per record.
func prepareReportData(records []model.ProcessRecord, generated time.Time) [][]any {
	pending, finished, requested, delivered := export.Summarize(records)

	values := make([][]any, 0, headerRows+1+len(records))
	values = append(values,
		[]any{"Vehicle Process Log", generated.Format("Jan 2, 2006 15:04")},
		[]any{"Vehicles", len(records), "Pending", pending, "Finished", finished},
		[]any{"Bags Requested", requested, "Bags Delivered", delivered},
		[]any{}, // Empty row
	)

	columns := export.Columns()
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	values = append(values, header)

	for _, r := range records {
		values = append(values, export.Row(r))
	}
	return values
}

// writeData writes the data to the spreadsheet.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	// Write in batches to avoid API limits
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		rangeStr := fmt.Sprintf("'%s'!A%d", w.config.SheetTitle, i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// formattingRequest styles the title and column header the same way as the
// xlsx export and freezes everything above the first record.
func formattingRequest(sheetID int64, totalRows int) *sheets.BatchUpdateSpreadsheetRequest {
	columns := int64(len(export.Columns()))

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   2,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true, FontSize: 14},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    headerRows,
					EndRowIndex:      headerRows + 1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: &sheets.Color{Red: 0x44 / 255.0, Green: 0x72 / 255.0, Blue: 0xC4 / 255.0},
						TextFormat: &sheets.TextFormat{
							Bold:            true,
							ForegroundColor: &sheets.Color{Red: 1, Green: 1, Blue: 1},
						},
						HorizontalAlignment: "CENTER",
						WrapStrategy:        "WRAP",
					},
				},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment,wrapStrategy)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: min(int64(headerRows+1), int64(totalRows)),
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	return &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
}
