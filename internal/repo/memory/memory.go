package memory

import (
	"context"
	"sort"
	"sync"

	"mentorledger/internal/core"
	"mentorledger/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps ledgers, installments and enrollments in process memory.
// A single mutex serialises writers, which makes every mutation atomic.
type Store struct {
	mu           sync.RWMutex
	ledgers      map[string]core.Ledger
	installments map[string]core.Installment
	byLedger     map[string][]string // ledger id -> installment ids
	enrollments  map[string]core.Enrollment
}

func New() *Store {
	return &Store{
		ledgers:      map[string]core.Ledger{},
		installments: map[string]core.Installment{},
		byLedger:     map[string][]string{},
		enrollments:  map[string]core.Enrollment{},
	}
}

// NewWithEnrollments seeds the directory.
func NewWithEnrollments(enrollments ...core.Enrollment) *Store {
	s := New()
	for _, e := range enrollments {
		s.enrollments[e.ID] = e
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateLedger(_ context.Context, l core.Ledger, installments []core.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[l.ID] = l
	s.putInstallments(l.ID, installments)
	return nil
}

func (s *Store) GetLedger(_ context.Context, id string) (core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[id]
	if !ok {
		return core.Ledger{}, &core.NotFoundError{Kind: "ledger", ID: id}
	}
	return l, nil
}

func (s *Store) ListLedgers(_ context.Context) ([]core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Ledger, 0, len(s.ledgers))
	for _, l := range s.ledgers {
		out = append(out, l)
	}
	sortLedgers(out)
	return out, nil
}

func (s *Store) LedgersForEnrollment(_ context.Context, enrollmentID string) ([]core.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Ledger
	for _, l := range s.ledgers {
		if l.EnrollmentID == enrollmentID {
			out = append(out, l)
		}
	}
	sortLedgers(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) UpdateLedger(_ context.Context, id string, expectedVersion int64, mutate repo.LedgerMutation) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.ledgers[id]
	if !ok {
		return core.Ledger{}, &core.NotFoundError{Kind: "ledger", ID: id}
	}
	if expectedVersion > 0 && l.Version != expectedVersion {
		return core.Ledger{}, &core.ConflictError{LedgerID: id, Expected: expectedVersion, Actual: l.Version}
	}
	regenerated, err := mutate(&l)
	if err != nil {
		return core.Ledger{}, err
	}
	s.ledgers[id] = l
	if regenerated != nil {
		s.dropInstallments(id)
		s.putInstallments(id, regenerated)
	}
	return l, nil
}

func (s *Store) DeleteLedger(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[id]; !ok {
		return &core.NotFoundError{Kind: "ledger", ID: id}
	}
	s.dropInstallments(id)
	delete(s.ledgers, id)
	return nil
}

func (s *Store) GetInstallment(_ context.Context, id string) (core.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.installments[id]
	if !ok {
		return core.Installment{}, &core.NotFoundError{Kind: "installment", ID: id}
	}
	return inst, nil
}

func (s *Store) LoadLedger(_ context.Context, id string) (core.Ledger, []core.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.ledgers[id]
	if !ok {
		return core.Ledger{}, nil, &core.NotFoundError{Kind: "ledger", ID: id}
	}
	return l, s.installmentsOf(id), nil
}

func (s *Store) ListInstallments(_ context.Context, ledgerID string) ([]core.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ledgers[ledgerID]; !ok {
		return nil, &core.NotFoundError{Kind: "ledger", ID: ledgerID}
	}
	return s.installmentsOf(ledgerID), nil
}

func (s *Store) Snapshot(_ context.Context) ([]core.Ledger, map[string][]core.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ledgers := make([]core.Ledger, 0, len(s.ledgers))
	installments := make(map[string][]core.Installment, len(s.ledgers))
	for id, l := range s.ledgers {
		ledgers = append(ledgers, l)
		installments[id] = s.installmentsOf(id)
	}
	sortLedgers(ledgers)
	return ledgers, installments, nil
}

func (s *Store) UpdateInstallment(_ context.Context, id string, expectedLedgerVersion int64, mutate repo.InstallmentMutation) (core.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.installments[id]
	if !ok {
		return core.Installment{}, &core.NotFoundError{Kind: "installment", ID: id}
	}
	l, ok := s.ledgers[inst.LedgerID]
	if !ok {
		return core.Installment{}, &core.NotFoundError{Kind: "ledger", ID: inst.LedgerID}
	}
	if expectedLedgerVersion > 0 && l.Version != expectedLedgerVersion {
		return core.Installment{}, &core.ConflictError{LedgerID: l.ID, Expected: expectedLedgerVersion, Actual: l.Version}
	}
	if err := mutate(l, &inst, s.installmentsOf(l.ID)); err != nil {
		return core.Installment{}, err
	}
	s.installments[id] = inst
	return inst, nil
}

func (s *Store) GetEnrollment(_ context.Context, id string) (core.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return core.Enrollment{}, &core.NotFoundError{Kind: "enrollment", ID: id}
	}
	return e, nil
}

func (s *Store) ListEnrollments(_ context.Context) ([]core.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpsertEnrollment(_ context.Context, e core.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments[e.ID] = e
	return nil
}

// callers hold s.mu
func (s *Store) putInstallments(ledgerID string, installments []core.Installment) {
	ids := make([]string, 0, len(installments))
	for _, inst := range installments {
		s.installments[inst.ID] = inst
		ids = append(ids, inst.ID)
	}
	s.byLedger[ledgerID] = ids
}

func (s *Store) dropInstallments(ledgerID string) {
	for _, id := range s.byLedger[ledgerID] {
		delete(s.installments, id)
	}
	delete(s.byLedger, ledgerID)
}

func (s *Store) installmentsOf(ledgerID string) []core.Installment {
	ids := s.byLedger[ledgerID]
	out := make([]core.Installment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.installments[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func sortLedgers(ls []core.Ledger) {
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].ID < ls[j].ID
		}
		return ls[i].CreatedAt.Before(ls[j].CreatedAt)
	})
}
