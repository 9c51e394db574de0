package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mentorledger/internal/core"
	"mentorledger/internal/repo"

	_ "modernc.org/sqlite"
)

// fixed width so text columns sort chronologically
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ repo.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; transactions carry every multi-row change
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateLedger(ctx context.Context, l core.Ledger, installments []core.Installment) error {
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.InsertLedger(ctx, ledgerToRow(l)); err != nil {
			return fmt.Errorf("insert ledger: %w", err)
		}
		for _, inst := range installments {
			if err := q.InsertInstallment(ctx, installmentToRow(inst)); err != nil {
				return fmt.Errorf("insert installment %d: %w", inst.Sequence, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ledger saved to SQLite",
		"ledger_id", l.ID,
		"enrollment_id", l.EnrollmentID,
		"amount_minor", l.Total.Minor,
		"currency", l.Currency(),
		"installments", len(installments))
	return nil
}

func (r *SQLiteRepository) GetLedger(ctx context.Context, id string) (core.Ledger, error) {
	row, err := r.queries.GetLedger(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Ledger{}, &core.NotFoundError{Kind: "ledger", ID: id}
	}
	if err != nil {
		return core.Ledger{}, fmt.Errorf("get ledger: %w", err)
	}
	return rowToLedger(row)
}

func (r *SQLiteRepository) ListLedgers(ctx context.Context) ([]core.Ledger, error) {
	rows, err := r.queries.ListLedgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	return rowsToLedgers(rows)
}

func (r *SQLiteRepository) LedgersForEnrollment(ctx context.Context, enrollmentID string) ([]core.Ledger, error) {
	rows, err := r.queries.ListLedgersByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, fmt.Errorf("list ledgers for enrollment %s: %w", enrollmentID, err)
	}
	return rowsToLedgers(rows)
}

func (r *SQLiteRepository) UpdateLedger(ctx context.Context, id string, expectedVersion int64, mutate repo.LedgerMutation) (core.Ledger, error) {
	var updated core.Ledger
	err := r.withTx(ctx, func(q *Queries) error {
		row, err := q.GetLedger(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "ledger", ID: id}
		}
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}
		l, err := rowToLedger(row)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && l.Version != expectedVersion {
			return &core.ConflictError{LedgerID: id, Expected: expectedVersion, Actual: l.Version}
		}

		regenerated, err := mutate(&l)
		if err != nil {
			return err
		}
		if err := q.UpdateLedger(ctx, ledgerToRow(l)); err != nil {
			return fmt.Errorf("update ledger: %w", err)
		}
		if regenerated != nil {
			if err := q.DeleteInstallmentsByLedger(ctx, id); err != nil {
				return fmt.Errorf("delete installments: %w", err)
			}
			for _, inst := range regenerated {
				if err := q.InsertInstallment(ctx, installmentToRow(inst)); err != nil {
					return fmt.Errorf("insert installment %d: %w", inst.Sequence, err)
				}
			}
		}
		updated = l
		return nil
	})
	return updated, err
}

func (r *SQLiteRepository) DeleteLedger(ctx context.Context, id string) error {
	return r.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteInstallmentsByLedger(ctx, id); err != nil {
			return fmt.Errorf("delete installments: %w", err)
		}
		n, err := q.DeleteLedger(ctx, id)
		if err != nil {
			return fmt.Errorf("delete ledger: %w", err)
		}
		if n == 0 {
			return &core.NotFoundError{Kind: "ledger", ID: id}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetInstallment(ctx context.Context, id string) (core.Installment, error) {
	row, err := r.queries.GetInstallment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Installment{}, &core.NotFoundError{Kind: "installment", ID: id}
	}
	if err != nil {
		return core.Installment{}, fmt.Errorf("get installment: %w", err)
	}
	return rowToInstallment(row)
}

func (r *SQLiteRepository) ListInstallments(ctx context.Context, ledgerID string) ([]core.Installment, error) {
	_, installments, err := r.LoadLedger(ctx, ledgerID)
	return installments, err
}

// LoadLedger reads a ledger and its installments inside one transaction.
func (r *SQLiteRepository) LoadLedger(ctx context.Context, id string) (core.Ledger, []core.Installment, error) {
	var (
		l            core.Ledger
		installments []core.Installment
	)
	err := r.withTx(ctx, func(q *Queries) error {
		row, err := q.GetLedger(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "ledger", ID: id}
		}
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}
		if l, err = rowToLedger(row); err != nil {
			return err
		}
		rows, err := q.ListInstallmentsByLedger(ctx, id)
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		installments, err = rowsToInstallments(rows)
		return err
	})
	if err != nil {
		return core.Ledger{}, nil, err
	}
	return l, installments, nil
}

// Snapshot reads ledgers and installments inside one transaction.
func (r *SQLiteRepository) Snapshot(ctx context.Context) ([]core.Ledger, map[string][]core.Installment, error) {
	var (
		ledgers []core.Ledger
		grouped map[string][]core.Installment
	)
	err := r.withTx(ctx, func(q *Queries) error {
		ledgerRows, err := q.ListLedgers(ctx)
		if err != nil {
			return fmt.Errorf("list ledgers: %w", err)
		}
		if ledgers, err = rowsToLedgers(ledgerRows); err != nil {
			return err
		}
		instRows, err := q.ListAllInstallments(ctx)
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		all, err := rowsToInstallments(instRows)
		if err != nil {
			return err
		}
		grouped = make(map[string][]core.Installment, len(ledgers))
		for _, inst := range all {
			grouped[inst.LedgerID] = append(grouped[inst.LedgerID], inst)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ledgers, grouped, nil
}

func (r *SQLiteRepository) UpdateInstallment(ctx context.Context, id string, expectedLedgerVersion int64, mutate repo.InstallmentMutation) (core.Installment, error) {
	var updated core.Installment
	err := r.withTx(ctx, func(q *Queries) error {
		instRow, err := q.GetInstallment(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "installment", ID: id}
		}
		if err != nil {
			return fmt.Errorf("get installment: %w", err)
		}
		inst, err := rowToInstallment(instRow)
		if err != nil {
			return err
		}
		ledgerRow, err := q.GetLedger(ctx, inst.LedgerID)
		if errors.Is(err, sql.ErrNoRows) {
			return &core.NotFoundError{Kind: "ledger", ID: inst.LedgerID}
		}
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}
		l, err := rowToLedger(ledgerRow)
		if err != nil {
			return err
		}
		if expectedLedgerVersion > 0 && l.Version != expectedLedgerVersion {
			return &core.ConflictError{LedgerID: l.ID, Expected: expectedLedgerVersion, Actual: l.Version}
		}
		siblingRows, err := q.ListInstallmentsByLedger(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		siblings, err := rowsToInstallments(siblingRows)
		if err != nil {
			return err
		}

		if err := mutate(l, &inst, siblings); err != nil {
			return err
		}
		if err := q.UpdateInstallment(ctx, installmentToRow(inst)); err != nil {
			return fmt.Errorf("update installment: %w", err)
		}
		updated = inst
		return nil
	})
	return updated, err
}

func (r *SQLiteRepository) GetEnrollment(ctx context.Context, id string) (core.Enrollment, error) {
	row, err := r.queries.GetEnrollment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Enrollment{}, &core.NotFoundError{Kind: "enrollment", ID: id}
	}
	if err != nil {
		return core.Enrollment{}, fmt.Errorf("get enrollment: %w", err)
	}
	return rowToEnrollment(row), nil
}

func (r *SQLiteRepository) ListEnrollments(ctx context.Context) ([]core.Enrollment, error) {
	rows, err := r.queries.ListEnrollments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	out := make([]core.Enrollment, len(rows))
	for i, row := range rows {
		out[i] = rowToEnrollment(row)
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertEnrollment(ctx context.Context, e core.Enrollment) error {
	active := int64(0)
	if e.Active {
		active = 1
	}
	err := r.queries.UpsertEnrollment(ctx, EnrollmentRow{
		ID:          e.ID,
		MenteeName:  e.MenteeName,
		ProgramName: e.ProgramName,
		Active:      active,
		UpdatedAt:   formatTimestamp(time.Now()),
	})
	if err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}
