package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"finassist/internal/core"
	ports "finassist/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID   string
	SheetName       string // base name; the expense year is prefixed
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	spreadsheetID string
	sheetBase     string

	appendRow func(ctx context.Context, rng string, row []any) (string, error)
	readRange func(ctx context.Context, rng string) ([][]any, error)
}

// Ensure interface conformance
var (
	_ ports.ExpenseMirror = (*Client)(nil)
	_ ports.MirrorLister  = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Expenses"
	}

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
		appendRow: func(ctx context.Context, rng string, row []any) (string, error) {
			resp, err := svc.Spreadsheets.Values.Append(spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).Do()
			if err != nil {
				return "", err
			}
			if resp.Updates == nil {
				return rng, nil
			}
			return resp.Updates.UpdatedRange, nil
		},
		readRange: func(ctx context.Context, rng string) ([][]any, error) {
			resp, err := svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
			if err != nil {
				return nil, err
			}
			return resp.Values, nil
		},
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	var err error

	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Append writes e as one row (date, description, amount, category, notes,
// expense id, user id) at the end of the sheet for the expense year and
// returns the updated range.
func (c *Client) Append(ctx context.Context, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.appendRow == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(c.sheetBase, e.Date.Year())
	rng := fmt.Sprintf("%s!A:G", quoteSheet(sheet))
	row := []any{
		e.Date.String(),
		e.Description,
		e.Amount.String(),
		string(e.Category),
		e.Notes,
		e.ID,
		e.UserID,
	}

	ref, err := c.appendRow(ctx, rng, row)
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}
	return ref, nil
}

// ListMonth reads back the rows mirrored for year and month. Rows that do
// not parse (headers, manual edits) are skipped.
func (c *Client) ListMonth(ctx context.Context, year int, month int) ([]core.Expense, error) {
	if c.readRange == nil {
		return nil, errors.New("sheets service not initialized")
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month: %d", month)
	}

	rng := fmt.Sprintf("%s!A:G", quoteSheet(yearPrefixedName(c.sheetBase, year)))
	values, err := c.readRange(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}

	var out []core.Expense
	for _, row := range values {
		e, ok := parseRow(toStrings(row))
		if !ok || e.Date.Year() != year || e.Date.Month() != month {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parseRow(cols []string) (core.Expense, bool) {
	if len(cols) < 4 {
		return core.Expense{}, false
	}
	date, err := core.ParseDate(cols[0])
	if err != nil {
		return core.Expense{}, false
	}
	amount, err := core.ParseMoney(cols[2])
	if err != nil {
		return core.Expense{}, false
	}
	category, err := core.ParseCategory(cols[3])
	if err != nil {
		category = core.Other
	}
	e := core.Expense{
		Date:        date,
		Description: cols[1],
		Amount:      amount,
		Category:    category,
		Notes:       safeGet(cols, 4),
	}
	e.ID, _ = strconv.ParseInt(safeGet(cols, 5), 10, 64)
	e.UserID, _ = strconv.ParseInt(safeGet(cols, 6), 10, 64)
	return e, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet quotes a sheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
