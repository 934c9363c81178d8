package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, name, email, hashed_password, role, location, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Role, &u.Location, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

type CreateUserParams struct {
	Name           string
	Email          string
	HashedPassword string
	Role           string
	Location       pgtype.Text
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	const sql = `INSERT INTO users (name, email, hashed_password, role, location)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns
	return scanUser(q.db.QueryRow(ctx, sql, arg.Name, arg.Email, arg.HashedPassword, arg.Role, arg.Location))
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(q.db.QueryRow(ctx, sql, email))
}

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.db.QueryRow(ctx, sql, id))
}

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListTailors returns users eligible for order assignment.
func (q *Queries) ListTailors(ctx context.Context) ([]User, error) {
	const sql = `SELECT ` + userColumns + ` FROM users WHERE role = 'tailor' ORDER BY name`
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type UpdateUserRoleParams struct {
	ID   uuid.UUID
	Role string
}

func (q *Queries) UpdateUserRole(ctx context.Context, arg UpdateUserRoleParams) (User, error) {
	const sql = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1
RETURNING ` + userColumns
	return scanUser(q.db.QueryRow(ctx, sql, arg.ID, arg.Role))
}

type UpdateUserLocationParams struct {
	ID       uuid.UUID
	Location pgtype.Text
}

func (q *Queries) UpdateUserLocation(ctx context.Context, arg UpdateUserLocationParams) (User, error) {
	const sql = `UPDATE users SET location = $2, updated_at = now() WHERE id = $1
RETURNING ` + userColumns
	return scanUser(q.db.QueryRow(ctx, sql, arg.ID, arg.Location))
}

func (q *Queries) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
