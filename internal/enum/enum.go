package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusNew        = "New"
	OrderStatusInProgress = "In Progress"
	OrderStatusTrial      = "Trial"
	OrderStatusAlteration = "Alteration"
	OrderStatusCompleted  = "Completed"
	OrderStatusDelivered  = "Delivered"
)

const (
	InvoiceStatusUnpaid        = "unpaid"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusCancelled     = "cancelled"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "admin"
	UserRoleManager = "manager"
	UserRoleTailor  = "tailor"
)

const (
	MeasurementUnitInches = "inches"
	MeasurementUnitCm     = "cm"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCard     = "card"
)

// DefaultLocation is assigned to staff accounts created without an
// explicit workshop unit.
const DefaultLocation = "Unit 1"
