package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const clientColumns = `id, name, phone, email, address, notes, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

type CreateClientParams struct {
	Name    string
	Phone   string
	Email   pgtype.Text
	Address pgtype.Text
	Notes   pgtype.Text
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) (Client, error) {
	const sql = `INSERT INTO clients (name, phone, email, address, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + clientColumns
	return scanClient(q.db.QueryRow(ctx, sql, arg.Name, arg.Phone, arg.Email, arg.Address, arg.Notes))
}

func (q *Queries) GetClient(ctx context.Context, id uuid.UUID) (Client, error) {
	const sql = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`
	return scanClient(q.db.QueryRow(ctx, sql, id))
}

// ListClients returns clients newest first, optionally filtered by a
// case-insensitive name or phone match.
func (q *Queries) ListClients(ctx context.Context, search pgtype.Text) ([]Client, error) {
	const sql = `SELECT ` + clientColumns + ` FROM clients
WHERE ($1::text IS NULL OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%')
ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

type UpdateClientParams struct {
	ID      uuid.UUID
	Name    string
	Phone   string
	Email   pgtype.Text
	Address pgtype.Text
	Notes   pgtype.Text
}

func (q *Queries) UpdateClient(ctx context.Context, arg UpdateClientParams) (Client, error) {
	const sql = `UPDATE clients
SET name = $2, phone = $3, email = $4, address = $5, notes = $6, updated_at = now()
WHERE id = $1
RETURNING ` + clientColumns
	return scanClient(q.db.QueryRow(ctx, sql, arg.ID, arg.Name, arg.Phone, arg.Email, arg.Address, arg.Notes))
}

func (q *Queries) DeleteClient(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
