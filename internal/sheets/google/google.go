package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	ports "mentorledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultRowCacheTTL = 2 * time.Minute

// rawInput stores cells as typed. Mentee and program names are user input,
// so a leading "=" must never be parsed as a formula.
const rawInput = "RAW"

// Client mirrors ledger rows into one sheet of a spreadsheet. Column A holds
// the ledger id; the row index built from it is cached for cacheValidDuration.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu                 sync.Mutex
	cachedRowCount     int
	rowIndex           map[string]int // ledger id -> 1-based row
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
	sheetID            *int64
}

var _ ports.LedgerMirror = (*Client)(nil)

// Credentials locates a service account key. JSON wins over File.
type Credentials struct {
	JSON string
	File string
}

// New creates a client for one sheet of a spreadsheet.
func New(ctx context.Context, spreadsheetID, sheetName string, creds Credentials) (*Client, error) {
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if sheetName == "" {
		sheetName = "Ledgers"
	}
	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewClient(svc, spreadsheetID, sheetName), nil
}

// NewClient wraps an existing service.
func NewClient(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	return &Client{
		svc:                svc,
		spreadsheetID:      spreadsheetID,
		sheetName:          sheetName,
		cacheValidDuration: defaultRowCacheTTL,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(creds.JSON)
	serviceAccountFile := strings.TrimSpace(creds.File)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
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

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// SetRowCacheTTL changes how long the row index is trusted.
func (c *Client) SetRowCacheTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheValidDuration = d
}

// InvalidateRowCache forces the next write to re-read column A.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	c.cacheExpiresAt = time.Time{}
	c.rowIndex = nil
}

// loadIndexLocked refreshes the row index when the cache has expired.
func (c *Client) loadIndexLocked(ctx context.Context) error {
	if c.rowIndex != nil && time.Now().Before(c.cacheExpiresAt) {
		return nil
	}
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	c.rowIndex, c.cachedRowCount = indexRows(resp.Values)
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return nil
}

func (c *Client) writeRowLocked(ctx context.Context, rowNum int, values []interface{}) error {
	rng := fmt.Sprintf("%s!A%d:%s%d", c.sheetName, rowNum, columnName(len(values)), rowNum)
	vr := &gsheet.ValueRange{Values: [][]interface{}{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption(rawInput).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// UpsertLedgerRow rewrites the ledger's row, appending it when absent. The
// header is written first on an empty sheet.
func (c *Client) UpsertLedgerRow(ctx context.Context, row ports.LedgerRow) error {
	if strings.TrimSpace(row.LedgerID) == "" {
		return errors.New("ledger row without ledger id")
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndexLocked(ctx); err != nil {
		return err
	}
	if c.cachedRowCount == 0 {
		header := make([]interface{}, len(ports.Header))
		for i, h := range ports.Header {
			header[i] = h
		}
		if err := c.writeRowLocked(ctx, 1, header); err != nil {
			c.invalidateLocked()
			return fmt.Errorf("write header: %w", err)
		}
		c.cachedRowCount = 1
	}

	rowNum, found := c.rowIndex[row.LedgerID]
	if !found {
		rowNum = c.cachedRowCount + 1
	}
	if err := c.writeRowLocked(ctx, rowNum, row.Values()); err != nil {
		c.invalidateLocked()
		return err
	}
	if !found {
		c.rowIndex[row.LedgerID] = rowNum
		c.cachedRowCount = rowNum
	}

	slog.DebugContext(ctx, "Ledger row mirrored",
		"ledger_id", row.LedgerID,
		"sheet", c.sheetName,
		"row", rowNum,
		"appended", !found)
	return nil
}

// DeleteLedgerRow removes the ledger's row and shifts the rows below it up.
func (c *Client) DeleteLedgerRow(ctx context.Context, ledgerID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndexLocked(ctx); err != nil {
		return err
	}
	rowNum, ok := c.rowIndex[ledgerID]
	if !ok {
		return nil
	}
	sheetID, err := c.sheetIDLocked(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(rowNum - 1),
					EndIndex:        int64(rowNum),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	// row numbers below the deleted one shift either way
	defer c.invalidateLocked()
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d in %s: %w", rowNum, c.sheetName, err)
	}

	slog.DebugContext(ctx, "Ledger row removed", "ledger_id", ledgerID, "sheet", c.sheetName, "row", rowNum)
	return nil
}

func (c *Client) sheetIDLocked(ctx context.Context) (int64, error) {
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}

// ListLedgerRows reads every mirrored row back.
func (c *Client) ListLedgerRows(ctx context.Context) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheetName, columnName(len(ports.Header)))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedgerRows(resp.Values), nil
}
