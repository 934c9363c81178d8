package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const invoiceColumns = `id, order_id, invoice_number, total_amount, paid_amount, status, due_date,
created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.OrderID, &inv.InvoiceNumber, &inv.TotalAmount, &inv.PaidAmount,
		&inv.Status, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

type CreateInvoiceParams struct {
	OrderID       uuid.UUID
	InvoiceNumber string
	TotalAmount   pgtype.Numeric
	PaidAmount    pgtype.Numeric
	Status        string
	DueDate       pgtype.Date
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	const sql = `INSERT INTO invoices (order_id, invoice_number, total_amount, paid_amount, status, due_date)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + invoiceColumns
	return scanInvoice(q.db.QueryRow(ctx, sql,
		arg.OrderID, arg.InvoiceNumber, arg.TotalAmount, arg.PaidAmount, arg.Status, arg.DueDate))
}

func (q *Queries) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	const sql = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return scanInvoice(q.db.QueryRow(ctx, sql, id))
}

func (q *Queries) GetInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (Invoice, error) {
	const sql = `SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1`
	return scanInvoice(q.db.QueryRow(ctx, sql, orderID))
}

// GetInvoiceLocation returns the owning order's location, used to scope
// single-invoice finance actions the same way the listing join does.
func (q *Queries) GetInvoiceLocation(ctx context.Context, id uuid.UUID) (pgtype.Text, error) {
	const sql = `SELECT o.location FROM invoices i
JOIN orders o ON o.id = i.order_id
WHERE i.id = $1`
	var location pgtype.Text
	err := q.db.QueryRow(ctx, sql, id).Scan(&location)
	return location, err
}

// ListInvoicesParams filters the finance listing. Location joins through the
// owning order so manager scoping applies to invoices the same way it does
// to orders.
type ListInvoicesParams struct {
	Status   pgtype.Text
	Location pgtype.Text
}

// ListInvoicesRow carries the owning order's client name for display,
// mirroring the finance dashboard join.
type ListInvoicesRow struct {
	Invoice
	ClientName string
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]ListInvoicesRow, error) {
	const sql = `SELECT i.id, i.order_id, i.invoice_number, i.total_amount, i.paid_amount, i.status,
i.due_date, i.created_at, i.updated_at, o.client_name
FROM invoices i
JOIN orders o ON o.id = i.order_id
WHERE ($1::text IS NULL OR i.status = $1)
  AND ($2::text IS NULL OR o.location = $2)
ORDER BY i.created_at DESC`
	rows, err := q.db.Query(ctx, sql, arg.Status, arg.Location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []ListInvoicesRow
	for rows.Next() {
		var r ListInvoicesRow
		if err := rows.Scan(&r.ID, &r.OrderID, &r.InvoiceNumber, &r.TotalAmount, &r.PaidAmount,
			&r.Status, &r.DueDate, &r.CreatedAt, &r.UpdatedAt, &r.ClientName); err != nil {
			return nil, err
		}
		invoices = append(invoices, r)
	}
	return invoices, rows.Err()
}

type UpdateInvoicePaymentParams struct {
	ID         uuid.UUID
	PaidAmount pgtype.Numeric
	Status     string
}

func (q *Queries) UpdateInvoicePayment(ctx context.Context, arg UpdateInvoicePaymentParams) (Invoice, error) {
	const sql = `UPDATE invoices SET paid_amount = $2, status = $3, updated_at = now()
WHERE id = $1
RETURNING ` + invoiceColumns
	return scanInvoice(q.db.QueryRow(ctx, sql, arg.ID, arg.PaidAmount, arg.Status))
}

// CancelInvoice marks an invoice cancelled unless it is already paid.
// pgx.ErrNoRows means the invoice is missing or paid.
func (q *Queries) CancelInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	const sql = `UPDATE invoices SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status <> 'paid'
RETURNING ` + invoiceColumns
	return scanInvoice(q.db.QueryRow(ctx, sql, id))
}

// NextInvoiceNumber returns the next value for the "INV-NNNN" sequence.
// Same race handling as measurement numbers: unique constraint plus retry.
func (q *Queries) NextInvoiceNumber(ctx context.Context) (int32, error) {
	const sql = `SELECT COALESCE(MAX(CAST(SUBSTRING(invoice_number FROM 5) AS INT)), 0) + 1
FROM invoices`
	var n int32
	err := q.db.QueryRow(ctx, sql).Scan(&n)
	return n, err
}
