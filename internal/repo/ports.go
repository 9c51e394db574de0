// Package repo defines the persistence ports of the ledger service.
package repo

import (
	"context"

	"mentorledger/internal/core"
)

type (
	// LedgerMutation edits l in place. A non-nil return replaces every
	// installment of the ledger; nil keeps the current ones.
	LedgerMutation func(l *core.Ledger) (regenerated []core.Installment, err error)

	// InstallmentMutation edits inst in place. siblings holds every
	// installment of the ledger as stored before the edit.
	InstallmentMutation func(ledger core.Ledger, inst *core.Installment, siblings []core.Installment) error

	// LedgerStore persists ledgers and their installments. Every method that
	// touches both runs atomically. Unknown ids return *core.NotFoundError.
	LedgerStore interface {
		CreateLedger(ctx context.Context, l core.Ledger, installments []core.Installment) error
		GetLedger(ctx context.Context, id string) (core.Ledger, error)
		// ListLedgers returns every ledger, oldest first.
		ListLedgers(ctx context.Context) ([]core.Ledger, error)
		// LedgersForEnrollment returns the enrollment's ledgers, newest first.
		LedgersForEnrollment(ctx context.Context, enrollmentID string) ([]core.Ledger, error)
		// UpdateLedger applies mutate under the ledger's lock. When
		// expectedVersion is positive and differs from the stored version a
		// *core.ConflictError is returned and nothing is written.
		UpdateLedger(ctx context.Context, id string, expectedVersion int64, mutate LedgerMutation) (core.Ledger, error)
		DeleteLedger(ctx context.Context, id string) error

		GetInstallment(ctx context.Context, id string) (core.Installment, error)
		// LoadLedger returns a ledger and its installments, by sequence, from
		// one consistent read.
		LoadLedger(ctx context.Context, id string) (core.Ledger, []core.Installment, error)
		// ListInstallments returns a ledger's installments by sequence.
		ListInstallments(ctx context.Context, ledgerID string) ([]core.Installment, error)
		// Snapshot returns every ledger, oldest first, with its installments
		// grouped by ledger id. Both come from one consistent read.
		Snapshot(ctx context.Context) ([]core.Ledger, map[string][]core.Installment, error)
		// UpdateInstallment applies mutate atomically. expectedLedgerVersion
		// follows the same rule as UpdateLedger.
		UpdateInstallment(ctx context.Context, id string, expectedLedgerVersion int64, mutate InstallmentMutation) (core.Installment, error)
	}

	// EnrollmentDirectory resolves enrollments for validation and labels.
	EnrollmentDirectory interface {
		GetEnrollment(ctx context.Context, id string) (core.Enrollment, error)
		ListEnrollments(ctx context.Context) ([]core.Enrollment, error)
		UpsertEnrollment(ctx context.Context, e core.Enrollment) error
	}

	// Store bundles both ports, as provided by the backends.
	Store interface {
		LedgerStore
		EnrollmentDirectory
		Close() error
	}
)
