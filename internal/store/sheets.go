package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	appconfig "chainflow/config"
	"chainflow/logger"
)

// SheetsStore maps tables to worksheets of one spreadsheet.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	defaultRows   int64
	defaultCols   int64

	mu     sync.Mutex
	sheets map[string]*sheets.SheetProperties
	log    *logger.Entry
}

// NewSheetsStore authenticates with a service account key file.
func NewSheetsStore(ctx context.Context, cfg appconfig.SheetsConfig, opts ...option.ClientOption) (*SheetsStore, error) {
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsStore{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		defaultRows:   cfg.DefaultRows,
		defaultCols:   cfg.DefaultCols,
		log:           logger.GetLogger().WithComponent("sheets_store"),
	}, nil
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func (s *SheetsStore) refresh(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields(googleapi.Field("sheets.properties(sheetId,title,gridProperties)")).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	s.sheets = make(map[string]*sheets.SheetProperties, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			s.sheets[sh.Properties.Title] = sh.Properties
		}
	}
	return nil
}

// lookup returns the worksheet properties, nil when the worksheet is absent.
func (s *SheetsStore) lookup(ctx context.Context, title string) (*sheets.SheetProperties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if props, ok := s.sheets[title]; ok {
		return props, nil
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.sheets[title], nil
}

func (s *SheetsStore) ensure(ctx context.Context, title string) (*sheets.SheetProperties, error) {
	props, err := s.lookup(ctx, title)
	if err != nil || props != nil {
		return props, err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{Requests: []*sheets.Request{{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{
			Title: title,
			GridProperties: &sheets.GridProperties{
				RowCount:    s.defaultRows,
				ColumnCount: s.defaultCols,
			},
		}},
	}}}
	resp, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("add worksheet %s: %w", title, err)
	}
	s.log.WithFields(logger.Fields{"table": title}).Info("created worksheet")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			s.sheets[title] = r.AddSheet.Properties
			return r.AddSheet.Properties, nil
		}
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.sheets[title], nil
}

// grow appends rows or columns so a write ending at (rows, cols) fits.
func (s *SheetsStore) grow(ctx context.Context, props *sheets.SheetProperties, rows, cols int64) error {
	var reqs []*sheets.Request
	grid := props.GridProperties
	if grid == nil {
		grid = &sheets.GridProperties{}
	}
	if rows > grid.RowCount {
		reqs = append(reqs, &sheets.Request{AppendDimension: &sheets.AppendDimensionRequest{
			SheetId: props.SheetId, Dimension: "ROWS", Length: rows - grid.RowCount,
		}})
	}
	if cols > grid.ColumnCount {
		reqs = append(reqs, &sheets.Request{AppendDimension: &sheets.AppendDimensionRequest{
			SheetId: props.SheetId, Dimension: "COLUMNS", Length: cols - grid.ColumnCount,
		}})
	}
	if len(reqs) == 0 {
		return nil
	}
	_, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("resize worksheet %s: %w", props.Title, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rows > grid.RowCount {
		grid.RowCount = rows
	}
	if cols > grid.ColumnCount {
		grid.ColumnCount = cols
	}
	props.GridProperties = grid
	return nil
}

func (s *SheetsStore) ReadAll(ctx context.Context, table string) ([][]string, error) {
	props, err := s.lookup(ctx, table)
	if err != nil {
		return nil, err
	}
	if props == nil {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteTitle(table)).Context(ctx).Do()
	if err != nil {
		return nil, s.classify(table, err)
	}
	return toStrings(resp.Values), nil
}

func (s *SheetsStore) Clear(ctx context.Context, table string) error {
	if _, err := s.ensure(ctx, table); err != nil {
		return err
	}
	_, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoteTitle(table), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return s.classify(table, err)
	}
	return nil
}

func (s *SheetsStore) WriteRange(ctx context.Context, table string, row, col int, values [][]string) error {
	if err := checkAnchor(row, col); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	props, err := s.ensure(ctx, table)
	if err != nil {
		return err
	}
	width := 0
	for _, r := range values {
		if len(r) > width {
			width = len(r)
		}
	}
	if err := s.grow(ctx, props, int64(row+len(values)), int64(col+width)); err != nil {
		return err
	}

	rng := quoteTitle(table) + "!" + A1(row, col)
	vr := &sheets.ValueRange{Values: toInterfaces(values)}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do()
	if err != nil {
		return s.classify(table, err)
	}
	return nil
}

func (s *SheetsStore) ReadCell(ctx context.Context, table string, ref string) (string, error) {
	row, col, err := ParseA1(ref)
	if err != nil {
		return "", err
	}
	props, err := s.lookup(ctx, table)
	if err != nil {
		return "", err
	}
	if props == nil {
		return "", fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteTitle(table)+"!"+A1(row, col)).Context(ctx).Do()
	if err != nil {
		return "", s.classify(table, err)
	}
	return cellAt(toStrings(resp.Values), 0, 0), nil
}

// classify maps a missing worksheet to ErrTableNotFound and drops the cached
// metadata so the next call sees renames and deletions.
func (s *SheetsStore) classify(table string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound ||
		(gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"))) {
		s.mu.Lock()
		delete(s.sheets, table)
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	return fmt.Errorf("sheets %s: %w", table, err)
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v != nil {
				out[i][j] = fmt.Sprint(v)
			}
		}
	}
	return out
}

func toInterfaces(values [][]string) [][]interface{} {
	out := make([][]interface{}, len(values))
	for i, row := range values {
		out[i] = make([]interface{}, len(row))
		for j, v := range row {
			out[i][j] = v
		}
	}
	return out
}
