package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type LedgerRow struct {
	ID               string
	EnrollmentID     string
	TotalMinor       int64
	Currency         string
	PaymentMethod    string
	InstallmentCount int64
	AnchorDate       string
	PaymentDate      sql.NullString
	Notes            string
	Version          int64
	CreatedAt        string
	UpdatedAt        string
}

type InstallmentRow struct {
	ID            string
	LedgerID      string
	LedgerVersion int64
	Sequence      int64
	AmountMinor   int64
	Currency      string
	DueDate       string
	Status        string
	PaymentDate   sql.NullString
	CreatedAt     string
	UpdatedAt     string
}

type EnrollmentRow struct {
	ID          string
	MenteeName  string
	ProgramName string
	Active      int64
	UpdatedAt   string
}

const ledgerColumns = `id, enrollment_id, total_minor, currency, payment_method, installment_count,
       anchor_date, payment_date, notes, version, created_at, updated_at`

const installmentColumns = `id, ledger_id, ledger_version, sequence, amount_minor, currency,
       due_date, status, payment_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLedger(row rowScanner) (LedgerRow, error) {
	var l LedgerRow
	err := row.Scan(&l.ID, &l.EnrollmentID, &l.TotalMinor, &l.Currency, &l.PaymentMethod,
		&l.InstallmentCount, &l.AnchorDate, &l.PaymentDate, &l.Notes, &l.Version,
		&l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func scanInstallment(row rowScanner) (InstallmentRow, error) {
	var i InstallmentRow
	err := row.Scan(&i.ID, &i.LedgerID, &i.LedgerVersion, &i.Sequence, &i.AmountMinor,
		&i.Currency, &i.DueDate, &i.Status, &i.PaymentDate, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const insertLedger = `INSERT INTO ledgers (` + ledgerColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertLedger(ctx context.Context, l LedgerRow) error {
	_, err := q.db.ExecContext(ctx, insertLedger,
		l.ID, l.EnrollmentID, l.TotalMinor, l.Currency, l.PaymentMethod, l.InstallmentCount,
		l.AnchorDate, l.PaymentDate, l.Notes, l.Version, l.CreatedAt, l.UpdatedAt)
	return err
}

const getLedger = `SELECT ` + ledgerColumns + ` FROM ledgers WHERE id = ?`

func (q *Queries) GetLedger(ctx context.Context, id string) (LedgerRow, error) {
	return scanLedger(q.db.QueryRowContext(ctx, getLedger, id))
}

const listLedgers = `SELECT ` + ledgerColumns + ` FROM ledgers ORDER BY created_at, id`

func (q *Queries) ListLedgers(ctx context.Context) ([]LedgerRow, error) {
	return q.queryLedgers(ctx, listLedgers)
}

const listLedgersByEnrollment = `SELECT ` + ledgerColumns + ` FROM ledgers
WHERE enrollment_id = ? ORDER BY created_at DESC, id DESC`

func (q *Queries) ListLedgersByEnrollment(ctx context.Context, enrollmentID string) ([]LedgerRow, error) {
	return q.queryLedgers(ctx, listLedgersByEnrollment, enrollmentID)
}

func (q *Queries) queryLedgers(ctx context.Context, query string, args ...interface{}) ([]LedgerRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LedgerRow
	for rows.Next() {
		l, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const updateLedger = `UPDATE ledgers
SET enrollment_id = ?, total_minor = ?, currency = ?, payment_method = ?, installment_count = ?,
    anchor_date = ?, payment_date = ?, notes = ?, version = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateLedger(ctx context.Context, l LedgerRow) error {
	_, err := q.db.ExecContext(ctx, updateLedger,
		l.EnrollmentID, l.TotalMinor, l.Currency, l.PaymentMethod, l.InstallmentCount,
		l.AnchorDate, l.PaymentDate, l.Notes, l.Version, l.UpdatedAt, l.ID)
	return err
}

const deleteLedger = `DELETE FROM ledgers WHERE id = ?`

func (q *Queries) DeleteLedger(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteLedger, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertInstallment = `INSERT INTO installments (` + installmentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertInstallment(ctx context.Context, i InstallmentRow) error {
	_, err := q.db.ExecContext(ctx, insertInstallment,
		i.ID, i.LedgerID, i.LedgerVersion, i.Sequence, i.AmountMinor, i.Currency,
		i.DueDate, i.Status, i.PaymentDate, i.CreatedAt, i.UpdatedAt)
	return err
}

const getInstallment = `SELECT ` + installmentColumns + ` FROM installments WHERE id = ?`

func (q *Queries) GetInstallment(ctx context.Context, id string) (InstallmentRow, error) {
	return scanInstallment(q.db.QueryRowContext(ctx, getInstallment, id))
}

const listInstallmentsByLedger = `SELECT ` + installmentColumns + ` FROM installments
WHERE ledger_id = ? ORDER BY sequence`

func (q *Queries) ListInstallmentsByLedger(ctx context.Context, ledgerID string) ([]InstallmentRow, error) {
	return q.queryInstallments(ctx, listInstallmentsByLedger, ledgerID)
}

const listAllInstallments = `SELECT ` + installmentColumns + ` FROM installments ORDER BY ledger_id, sequence`

func (q *Queries) ListAllInstallments(ctx context.Context) ([]InstallmentRow, error) {
	return q.queryInstallments(ctx, listAllInstallments)
}

func (q *Queries) queryInstallments(ctx context.Context, query string, args ...interface{}) ([]InstallmentRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InstallmentRow
	for rows.Next() {
		i, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const updateInstallment = `UPDATE installments
SET amount_minor = ?, due_date = ?, status = ?, payment_date = ?, updated_at = ?
WHERE id = ?`

func (q *Queries) UpdateInstallment(ctx context.Context, i InstallmentRow) error {
	_, err := q.db.ExecContext(ctx, updateInstallment,
		i.AmountMinor, i.DueDate, i.Status, i.PaymentDate, i.UpdatedAt, i.ID)
	return err
}

const deleteInstallmentsByLedger = `DELETE FROM installments WHERE ledger_id = ?`

func (q *Queries) DeleteInstallmentsByLedger(ctx context.Context, ledgerID string) error {
	_, err := q.db.ExecContext(ctx, deleteInstallmentsByLedger, ledgerID)
	return err
}

const upsertEnrollment = `INSERT INTO enrollments (id, mentee_name, program_name, active, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    mentee_name = excluded.mentee_name,
    program_name = excluded.program_name,
    active = excluded.active,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertEnrollment(ctx context.Context, e EnrollmentRow) error {
	_, err := q.db.ExecContext(ctx, upsertEnrollment, e.ID, e.MenteeName, e.ProgramName, e.Active, e.UpdatedAt)
	return err
}

const getEnrollment = `SELECT id, mentee_name, program_name, active, updated_at FROM enrollments WHERE id = ?`

func (q *Queries) GetEnrollment(ctx context.Context, id string) (EnrollmentRow, error) {
	var e EnrollmentRow
	err := q.db.QueryRowContext(ctx, getEnrollment, id).Scan(&e.ID, &e.MenteeName, &e.ProgramName, &e.Active, &e.UpdatedAt)
	return e, err
}

const listEnrollments = `SELECT id, mentee_name, program_name, active, updated_at FROM enrollments ORDER BY id`

func (q *Queries) ListEnrollments(ctx context.Context) ([]EnrollmentRow, error) {
	rows, err := q.db.QueryContext(ctx, listEnrollments)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EnrollmentRow
	for rows.Next() {
		var e EnrollmentRow
		if err := rows.Scan(&e.ID, &e.MenteeName, &e.ProgramName, &e.Active, &e.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}
