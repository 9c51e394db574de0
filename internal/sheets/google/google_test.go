package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	ports "mentorledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the subset of the Sheets v4 API the client uses.
type fakeSheets struct {
	mu         sync.Mutex
	rows       [][]interface{}
	valueGets  int
	deletedIDs []int64
	inputModes []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		f.valueGets++
		writeJSON(w, map[string]interface{}{"values": f.rows})

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		rng := path[strings.Index(path, "/values/")+len("/values/"):]
		rowNum := rowOf(rng)
		var vr struct {
			Values [][]interface{} `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil || rowNum < 1 || len(vr.Values) != 1 {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		for len(f.rows) < rowNum {
			f.rows = append(f.rows, []interface{}{})
		}
		f.rows[rowNum-1] = vr.Values[0]
		f.inputModes = append(f.inputModes, r.URL.Query().Get("valueInputOption"))
		writeJSON(w, map[string]interface{}{"updatedRows": 1})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}
		for _, rq := range req.Requests {
			if rq.DeleteDimension == nil {
				continue
			}
			dr := rq.DeleteDimension.Range
			f.deletedIDs = append(f.deletedIDs, dr.SheetId)
			f.rows = append(f.rows[:dr.StartIndex], f.rows[dr.EndIndex:]...)
		}
		writeJSON(w, map[string]interface{}{"spreadsheetId": "sid"})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		writeJSON(w, map[string]interface{}{
			"sheets": []interface{}{
				map[string]interface{}{"properties": map[string]interface{}{"sheetId": 0, "title": "Other"}},
				map[string]interface{}{"properties": map[string]interface{}{"sheetId": 7, "title": "Ledgers"}},
			},
		})

	default:
		http.NotFound(w, r)
	}
}

// rowOf extracts the row number from a range like "Ledgers!A3:P3".
func rowOf(rng string) int {
	i := strings.Index(rng, "!A")
	j := strings.Index(rng, ":")
	if i < 0 || j < i {
		return 0
	}
	n, _ := strconv.Atoi(rng[i+2 : j])
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewClient(svc, "sid", "Ledgers"), fake
}

func (f *fakeSheets) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.rows))
	for i, row := range f.rows {
		if len(row) > 0 {
			out[i], _ = row[0].(string)
		}
	}
	return out
}

func TestClient_UpsertLedgerRow(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	for _, row := range []ports.LedgerRow{
		{LedgerID: "led-1", Status: "0/2 installments paid"},
		{LedgerID: "led-2", Status: "0/1 installments paid"},
		{LedgerID: "led-1", Status: "1/2 installments paid"},
	} {
		if err := c.UpsertLedgerRow(ctx, row); err != nil {
			t.Fatalf("upsert %s: %v", row.LedgerID, err)
		}
	}

	got := fake.ids()
	want := []string{"Ledger ID", "led-1", "led-2"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("sheet ids = %v, want %v", got, want)
	}
	if fake.valueGets != 1 {
		t.Errorf("column A read %d times, want 1 while the cache is valid", fake.valueGets)
	}

	rows, err := c.ListLedgerRows(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Status != "1/2 installments paid" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestClient_UpsertStoresFormulasAsText(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	names := []string{`=HYPERLINK("http://evil.example","x")`, "+1+1", "-2", "@SUM(A1)"}
	for i, name := range names {
		row := ports.LedgerRow{LedgerID: "led-" + strconv.Itoa(i), MenteeName: name}
		if err := c.UpsertLedgerRow(ctx, row); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	fake.mu.Lock()
	modes := append([]string(nil), fake.inputModes...)
	fake.mu.Unlock()
	if len(modes) != len(names)+1 {
		t.Fatalf("got %d writes, want %d", len(modes), len(names)+1)
	}
	for _, m := range modes {
		if m != "RAW" {
			t.Errorf("valueInputOption = %q, want RAW", m)
		}
	}

	rows, err := c.ListLedgerRows(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != len(names) {
		t.Fatalf("got %d rows, want %d", len(rows), len(names))
	}
	for i, row := range rows {
		if row.MenteeName != names[i] {
			t.Errorf("row %d mentee = %q, want %q", i, row.MenteeName, names[i])
		}
	}
}

func TestClient_DeleteLedgerRow(t *testing.T) {
	c, fake := newFakeClient(t)
	ctx := context.Background()

	for _, id := range []string{"led-1", "led-2", "led-3"} {
		if err := c.UpsertLedgerRow(ctx, ports.LedgerRow{LedgerID: id}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if err := c.DeleteLedgerRow(ctx, "led-2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := strings.Join(fake.ids(), ","); got != "Ledger ID,led-1,led-3" {
		t.Fatalf("sheet ids after delete = %s", got)
	}
	if len(fake.deletedIDs) != 1 || fake.deletedIDs[0] != 7 {
		t.Fatalf("deleted on sheet ids %v, want [7]", fake.deletedIDs)
	}

	// rows shifted, so the next write must re-read the index
	if err := c.UpsertLedgerRow(ctx, ports.LedgerRow{LedgerID: "led-3", Status: "updated"}); err != nil {
		t.Fatalf("upsert after delete: %v", err)
	}
	if got := strings.Join(fake.ids(), ","); got != "Ledger ID,led-1,led-3" {
		t.Fatalf("sheet ids after rewrite = %s", got)
	}

	if err := c.DeleteLedgerRow(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing row should succeed, got %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	ctx := context.Background()
	if err := c.UpsertLedgerRow(ctx, ports.LedgerRow{LedgerID: "x"}); err == nil {
		t.Error("expected error from upsert without service")
	}
	if err := c.UpsertLedgerRow(ctx, ports.LedgerRow{}); err == nil {
		t.Error("expected error for empty ledger id")
	}
	if _, err := c.ListLedgerRows(ctx); err == nil {
		t.Error("expected error from list without service")
	}
}

func TestNewSheetsService_Credentials(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "none configured",
			env:     map[string]string{},
			wantErr: "missing service account credentials",
		},
		{
			name:    "unreadable file",
			env:     map[string]string{"GOOGLE_SERVICE_ACCOUNT_FILE": filepath.Join(t.TempDir(), "nope.json")},
			wantErr: "read service account file",
		},
		{
			name:    "application default path",
			env:     map[string]string{"GOOGLE_APPLICATION_CREDENTIALS": filepath.Join(t.TempDir(), "adc.json")},
			wantErr: "read service account file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
				t.Setenv(k, tt.env[k])
			}
			creds := Credentials{JSON: tt.env["GOOGLE_SERVICE_ACCOUNT_JSON"], File: tt.env["GOOGLE_SERVICE_ACCOUNT_FILE"]}
			_, err := newSheetsService(context.Background(), creds)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_WithoutCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), "test-id", "", Credentials{})
	if err == nil || !strings.Contains(err.Error(), "sheets service") {
		t.Fatalf("expected failure at service creation, got %v", err)
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), "", "Ledgers", Credentials{JSON: "{}"})
	if err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("unexpected error: %v", err)
	}
}
