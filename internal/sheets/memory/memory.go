package memory

import (
	"context"
	"strings"
	"sync"

	"mentorledger/internal/sheets"
)

var _ sheets.LedgerMirror = (*Store)(nil)

// Store is an in-process ledger mirror used when no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	order []string
	rows  map[string]sheets.LedgerRow
}

func New() *Store {
	return &Store{rows: map[string]sheets.LedgerRow{}}
}

// UpsertLedgerRow replaces the row for the ledger or appends a new one.
func (s *Store) UpsertLedgerRow(_ context.Context, row sheets.LedgerRow) error {
	id := strings.TrimSpace(row.LedgerID)
	if id == "" {
		return errEmptyLedgerID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		s.order = append(s.order, id)
	}
	s.rows[id] = row
	return nil
}

func (s *Store) DeleteLedgerRow(_ context.Context, ledgerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[ledgerID]; !ok {
		return nil
	}
	delete(s.rows, ledgerID)
	for i, id := range s.order {
		if id == ledgerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListLedgerRows returns rows in insertion order.
func (s *Store) ListLedgerRows(_ context.Context) ([]sheets.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.LedgerRow, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out, nil
}

// Row returns the row for a ledger.
func (s *Store) Row(ledgerID string) (sheets.LedgerRow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[ledgerID]
	return row, ok
}
