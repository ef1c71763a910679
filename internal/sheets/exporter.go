package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/odyssey-erp/expenseflow/internal/expense"
)

// Config locates the ledger sheet.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	SheetID         int64
	CredentialsFile string
	// Endpoint overrides the API base URL and disables authentication. Used with emulators.
	Endpoint string
	Location *time.Location
}

// Exporter appends paid expenses to the ledger.
type Exporter struct {
	svc    *gsheets.Service
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

// NewExporter builds a Sheets client from a service account key file, or an
// unauthenticated client when Endpoint is set.
func NewExporter(ctx context.Context, cfg Config, logger *slog.Logger) (*Exporter, error) {
	if cfg.SpreadsheetID == "" || cfg.SheetName == "" {
		return nil, errors.New("sheets: spreadsheet id and sheet name required")
	}
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	} else {
		key, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("sheets: read credentials: %w", err)
		}
		jwt, err := google.JWTConfigFromJSON(key, gsheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets: parse credentials: %w", err)
		}
		var source oauth2.TokenSource = jwt.TokenSource(ctx)
		opts = append(opts, option.WithTokenSource(source))
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: new service: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = Moscow("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{svc: svc, cfg: cfg, logger: logger, clock: time.Now}, nil
}

// Export writes the rows for a paid record and returns how many were written.
func (e *Exporter) Export(ctx context.Context, rec expense.Record) (int, error) {
	rows, err := BuildRows(rec, e.clock().In(e.cfg.Location))
	if err != nil {
		return 0, err
	}
	if err := e.Append(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Append writes rows starting at the first blank line of the sheet.
func (e *Exporter) Append(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	current, err := e.svc.Spreadsheets.Values.Get(e.cfg.SpreadsheetID, e.cfg.SheetName+"!A:J").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: read values: %w", err)
	}
	start := FirstBlankRow(current.Values)
	end := start + len(rows) - 1

	values := make([][]any, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.Values())
	}
	target := fmt.Sprintf("%s!B%d:J%d", e.cfg.SheetName, start, end)
	_, err = e.svc.Spreadsheets.Values.Update(e.cfg.SpreadsheetID, target, &gsheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheets: write %s: %w", target, err)
	}
	e.logger.Info("sheet rows appended", slog.Int("rows", len(rows)), slog.Int("start_row", start))

	if err := e.format(ctx, start, end); err != nil {
		e.logger.Warn("format sheet rows", slog.Any("error", err))
	}
	return nil
}

// format applies the date and currency formats to the written rows.
func (e *Exporter) format(ctx context.Context, start, end int) error {
	column := func(col int64, format *gsheets.NumberFormat) *gsheets.Request {
		return &gsheets.Request{RepeatCell: &gsheets.RepeatCellRequest{
			Range: &gsheets.GridRange{
				SheetId:          e.cfg.SheetID,
				StartRowIndex:    int64(start - 1),
				EndRowIndex:      int64(end),
				StartColumnIndex: col,
				EndColumnIndex:   col + 1,
			},
			Cell:   &gsheets.CellData{UserEnteredFormat: &gsheets.CellFormat{NumberFormat: format}},
			Fields: "userEnteredFormat.numberFormat",
		}}
	}
	req := &gsheets.BatchUpdateSpreadsheetRequest{Requests: []*gsheets.Request{
		column(1, &gsheets.NumberFormat{Type: "DATE", Pattern: "dd.mm.yyyy"}),
		column(2, &gsheets.NumberFormat{Type: "CURRENCY", Pattern: "₽ #,###"}),
		column(8, &gsheets.NumberFormat{Type: "DATE", Pattern: "dd.mm.yyyy"}),
	}}
	_, err := e.svc.Spreadsheets.BatchUpdate(e.cfg.SpreadsheetID, req).Context(ctx).Do()
	return err
}
