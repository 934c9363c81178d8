package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, client_name, phone, garment_type, delivery_date, status,
assigned_tailor_id, measurement_id, location, notes, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ClientName, &o.Phone, &o.GarmentType, &o.DeliveryDate, &o.Status,
		&o.AssignedTailorID, &o.MeasurementID, &o.Location, &o.Notes, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

type CreateOrderParams struct {
	ClientName       string
	Phone            pgtype.Text
	GarmentType      string
	DeliveryDate     time.Time
	Status           string
	AssignedTailorID pgtype.UUID
	MeasurementID    pgtype.UUID
	Location         pgtype.Text
	Notes            pgtype.Text
	CreatedBy        uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	const sql = `INSERT INTO orders
(client_name, phone, garment_type, delivery_date, status, assigned_tailor_id, measurement_id, location, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql,
		arg.ClientName, arg.Phone, arg.GarmentType, arg.DeliveryDate, arg.Status,
		arg.AssignedTailorID, arg.MeasurementID, arg.Location, arg.Notes, arg.CreatedBy))
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	const sql = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(q.db.QueryRow(ctx, sql, id))
}

// ListOrdersParams carries both visibility scoping (AssignedTailorID,
// Location) and UI filters (Status, Search). Invalid pgtype values are
// passed as NULL and skip their clause.
type ListOrdersParams struct {
	Status           pgtype.Text
	AssignedTailorID pgtype.UUID
	Location         pgtype.Text
	Search           pgtype.Text
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	const sql = `SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::uuid IS NULL OR assigned_tailor_id = $2)
  AND ($3::text IS NULL OR location = $3)
  AND ($4::text IS NULL OR client_name ILIKE '%' || $4 || '%' OR phone LIKE '%' || $4 || '%')
ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, arg.Status, arg.AssignedTailorID, arg.Location, arg.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatusParams is a compare-and-set: the write succeeds only if
// the stored status still equals ExpectedStatus. pgx.ErrNoRows signals that
// a concurrent writer got there first (or the order is gone).
type UpdateOrderStatusParams struct {
	ID             uuid.UUID
	Status         string
	ExpectedStatus string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	const sql = `UPDATE orders SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, arg.ID, arg.Status, arg.ExpectedStatus))
}

type AssignOrderTailorParams struct {
	ID               uuid.UUID
	AssignedTailorID pgtype.UUID
}

func (q *Queries) AssignOrderTailor(ctx context.Context, arg AssignOrderTailorParams) (Order, error) {
	const sql = `UPDATE orders SET assigned_tailor_id = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns
	return scanOrder(q.db.QueryRow(ctx, sql, arg.ID, arg.AssignedTailorID))
}

// DeleteOrder removes an order row. Used as the compensating write when a
// later step of order creation fails.
func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type CountOrdersByStatusParams struct {
	AssignedTailorID pgtype.UUID
	Location         pgtype.Text
}

type CountOrdersByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountOrdersByStatus(ctx context.Context, arg CountOrdersByStatusParams) ([]CountOrdersByStatusRow, error) {
	const sql = `SELECT status, COUNT(*) FROM orders
WHERE ($1::uuid IS NULL OR assigned_tailor_id = $1)
  AND ($2::text IS NULL OR location = $2)
GROUP BY status`
	rows, err := q.db.Query(ctx, sql, arg.AssignedTailorID, arg.Location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CountOrdersByStatusRow
	for rows.Next() {
		var c CountOrdersByStatusRow
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}
