package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const measurementColumns = `id, sequence_number, client_name, phone, shoulder, chest, waist, hip,
sleeve_length, top_length, unit, notes, created_at`

func scanMeasurement(row pgx.Row) (Measurement, error) {
	var m Measurement
	err := row.Scan(&m.ID, &m.SequenceNumber, &m.ClientName, &m.Phone, &m.Shoulder, &m.Chest,
		&m.Waist, &m.Hip, &m.SleeveLength, &m.TopLength, &m.Unit, &m.Notes, &m.CreatedAt)
	return m, err
}

type CreateMeasurementParams struct {
	SequenceNumber string
	ClientName     string
	Phone          string
	Shoulder       pgtype.Text
	Chest          pgtype.Text
	Waist          pgtype.Text
	Hip            pgtype.Text
	SleeveLength   pgtype.Text
	TopLength      pgtype.Text
	Unit           string
	Notes          pgtype.Text
}

func (q *Queries) CreateMeasurement(ctx context.Context, arg CreateMeasurementParams) (Measurement, error) {
	const sql = `INSERT INTO measurements
(sequence_number, client_name, phone, shoulder, chest, waist, hip, sleeve_length, top_length, unit, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + measurementColumns
	return scanMeasurement(q.db.QueryRow(ctx, sql,
		arg.SequenceNumber, arg.ClientName, arg.Phone, arg.Shoulder, arg.Chest, arg.Waist,
		arg.Hip, arg.SleeveLength, arg.TopLength, arg.Unit, arg.Notes))
}

func (q *Queries) GetMeasurement(ctx context.Context, id uuid.UUID) (Measurement, error) {
	const sql = `SELECT ` + measurementColumns + ` FROM measurements WHERE id = $1`
	return scanMeasurement(q.db.QueryRow(ctx, sql, id))
}

func (q *Queries) ListMeasurements(ctx context.Context, search pgtype.Text) ([]Measurement, error) {
	const sql = `SELECT ` + measurementColumns + ` FROM measurements
WHERE ($1::text IS NULL OR client_name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%')
ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var measurements []Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}

// NextMeasurementNumber returns the next value for the human-readable
// "MS-NNN" sequence. Concurrent callers can read the same MAX; the unique
// constraint on sequence_number catches the race and the caller retries.
func (q *Queries) NextMeasurementNumber(ctx context.Context) (int32, error) {
	const sql = `SELECT COALESCE(MAX(CAST(SUBSTRING(sequence_number FROM 4) AS INT)), 0) + 1
FROM measurements`
	var n int32
	err := q.db.QueryRow(ctx, sql).Scan(&n)
	return n, err
}

func (q *Queries) DeleteMeasurement(ctx context.Context, id uuid.UUID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM measurements WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
