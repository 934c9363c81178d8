package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, invoice_id, amount, method, paid_at, recorded_by, notes, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.PaidAt, &p.RecordedBy, &p.Notes, &p.CreatedAt)
	return p, err
}

type CreatePaymentParams struct {
	InvoiceID  uuid.UUID
	Amount     pgtype.Numeric
	Method     string
	PaidAt     time.Time
	RecordedBy pgtype.UUID
	Notes      pgtype.Text
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	const sql = `INSERT INTO payments (invoice_id, amount, method, paid_at, recorded_by, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + paymentColumns
	return scanPayment(q.db.QueryRow(ctx, sql,
		arg.InvoiceID, arg.Amount, arg.Method, arg.PaidAt, arg.RecordedBy, arg.Notes))
}

func (q *Queries) ListPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Payment, error) {
	const sql = `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1 ORDER BY paid_at`
	rows, err := q.db.Query(ctx, sql, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// SumPaymentsByInvoice returns the ledger total; the invoice's paid_amount
// is always recomputed from this sum, never incremented in place.
func (q *Queries) SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error) {
	const sql = `SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`
	var n pgtype.Numeric
	err := q.db.QueryRow(ctx, sql, invoiceID).Scan(&n)
	return n, err
}
