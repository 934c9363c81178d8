package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// User is a staff account. Role is one of enum.UserRoleAdmin/Manager/Tailor;
// Location is the workshop unit label used for manager scoping.
type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	HashedPassword string
	Role           string
	Location       pgtype.Text
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Client is a customer record. Orders reference clients by name/phone only,
// as a lookup convenience rather than an enforced relation.
type Client struct {
	ID        uuid.UUID
	Name      string
	Phone     string
	Email     pgtype.Text
	Address   pgtype.Text
	Notes     pgtype.Text
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Measurement is a snapshot of a client's body dimensions. Dimensions are
// stored as text the way they are entered on the workshop floor.
type Measurement struct {
	ID             uuid.UUID
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
	CreatedAt      time.Time
}

// Order is the central entity of the production pipeline.
type Order struct {
	ID               uuid.UUID
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
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Invoice belongs to exactly one order. PaidAmount is derived from the
// payment ledger; Status from PaidAmount vs TotalAmount unless cancelled.
type Invoice struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	InvoiceNumber string
	TotalAmount   pgtype.Numeric
	PaidAmount    pgtype.Numeric
	Status        string
	DueDate       pgtype.Date
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	Amount     pgtype.Numeric
	Method     string
	PaidAt     time.Time
	RecordedBy pgtype.UUID
	Notes      pgtype.Text
	CreatedAt  time.Time
}
