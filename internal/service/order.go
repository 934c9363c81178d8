// Package service holds the order orchestration logic: intake, status
// transitions, and tailor assignment, with the access policy enforced in
// front of every store call.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/atelierhq/api/internal/policy"
	"github.com/atelierhq/api/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const maxSequenceRetries = 3

// Errors returned by the order service.
var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrForbidden           = errors.New("action not permitted")
	ErrInvalidStatus       = errors.New("unknown order status")
	ErrInvalidTransition   = errors.New("transition not allowed from current status")
	ErrStaleStatus         = errors.New("order status changed concurrently")
	ErrTailorNotFound      = errors.New("tailor not found")
	ErrNotATailor          = errors.New("assignee is not a tailor")
	ErrClientNameRequired  = errors.New("client_name is required")
	ErrGarmentRequired     = errors.New("garment_type is required")
	ErrInvalidDeliveryDate = errors.New("invalid delivery_date")
	ErrInvalidAmount       = errors.New("invalid total_amount")
	ErrInvalidDueDate      = errors.New("invalid due_date")
	ErrInvalidTailorID     = errors.New("invalid tailor_id")
	ErrInvalidMeasurement  = errors.New("invalid measurement_id")
)

// OrderStore defines the DB methods the orchestrator needs.
// Satisfied by *database.Queries.
type OrderStore interface {
	NextMeasurementNumber(ctx context.Context) (int32, error)
	CreateMeasurement(ctx context.Context, arg database.CreateMeasurementParams) (database.Measurement, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	AssignOrderTailor(ctx context.Context, arg database.AssignOrderTailorParams) (database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	CountOrdersByStatus(ctx context.Context, arg database.CountOrdersByStatusParams) ([]database.CountOrdersByStatusRow, error)
	NextInvoiceNumber(ctx context.Context) (int32, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// MeasurementInput is an optional measurement sheet recorded at intake.
type MeasurementInput struct {
	Shoulder     string
	Chest        string
	Waist        string
	Hip          string
	SleeveLength string
	TopLength    string
	Unit         string
	Notes        string
}

// CreateOrderRequest is the validated input for order intake.
type CreateOrderRequest struct {
	ClientName       string
	Phone            string
	GarmentType      string
	DeliveryDate     string // 2006-01-02
	AssignedTailorID string
	Location         string
	Notes            string
	TotalAmount      string
	DueDate          string // 2006-01-02, optional
	MeasurementID    string
	Measurement      *MeasurementInput
}

// CreateOrderResult is the intake outcome: the order, its invoice, and the
// measurement sheet if one was recorded.
type CreateOrderResult struct {
	Order       database.Order
	Invoice     database.Invoice
	Measurement *database.Measurement
}

// OrderService coordinates intake and lifecycle operations.
type OrderService struct {
	store  OrderStore
	policy policy.Policy
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, p policy.Policy) *OrderService {
	return &OrderService{store: store, policy: p}
}

// CreateOrder runs the intake sequence: measurement (optional), order,
// invoice. The three writes are independent, not one transaction; if the
// invoice insert fails the order is deleted so intake never leaves an
// uninvoiced order behind.
//
// Sequence numbers come from MAX+1 queries, so concurrent intakes can
// collide on the unique constraint; those steps retry up to
// maxSequenceRetries times.
func (s *OrderService) CreateOrder(ctx context.Context, pr policy.Principal, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.ClientName == "" {
		return nil, ErrClientNameRequired
	}
	if req.GarmentType == "" {
		return nil, ErrGarmentRequired
	}
	deliveryDate, err := time.Parse("2006-01-02", req.DeliveryDate)
	if err != nil {
		return nil, ErrInvalidDeliveryDate
	}
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || total.IsNegative() {
		return nil, ErrInvalidAmount
	}
	dueDate := pgtype.Date{}
	if req.DueDate != "" {
		t, err := time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			return nil, ErrInvalidDueDate
		}
		dueDate = pgtype.Date{Time: t, Valid: true}
	}

	location := req.Location
	if location == "" {
		location = pr.Location
	}
	if location == "" {
		location = enum.DefaultLocation
	}

	if !s.policy.Can(pr, policy.ActionCreateOrder, policy.Target{Location: location}) {
		return nil, ErrForbidden
	}

	assignedTailorID := pgtype.UUID{}
	if req.AssignedTailorID != "" {
		tid, err := uuid.Parse(req.AssignedTailorID)
		if err != nil {
			return nil, ErrInvalidTailorID
		}
		if err := s.checkTailor(ctx, tid); err != nil {
			return nil, err
		}
		assignedTailorID = pgtype.UUID{Bytes: tid, Valid: true}
	}

	measurementID := pgtype.UUID{}
	if req.MeasurementID != "" {
		mid, err := uuid.Parse(req.MeasurementID)
		if err != nil {
			return nil, ErrInvalidMeasurement
		}
		measurementID = pgtype.UUID{Bytes: mid, Valid: true}
	}

	var measurement *database.Measurement
	if req.Measurement != nil {
		m, err := s.createMeasurement(ctx, req)
		if err != nil {
			return nil, err
		}
		measurement = &m
		measurementID = pgtype.UUID{Bytes: m.ID, Valid: true}
	}

	order, err := s.store.CreateOrder(ctx, database.CreateOrderParams{
		ClientName:       req.ClientName,
		Phone:            textOrNull(req.Phone),
		GarmentType:      req.GarmentType,
		DeliveryDate:     deliveryDate,
		Status:           enum.OrderStatusNew,
		AssignedTailorID: assignedTailorID,
		MeasurementID:    measurementID,
		Location:         textOrNull(location),
		Notes:            textOrNull(req.Notes),
		CreatedBy:        pr.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	invoice, err := s.createInvoice(ctx, order.ID, total, dueDate)
	if err != nil {
		// Compensate: an order without an invoice is unbillable, so roll
		// the order insert back. The measurement sheet is kept; it is a
		// client record in its own right.
		if delErr := s.store.DeleteOrder(ctx, order.ID); delErr != nil {
			return nil, fmt.Errorf("create invoice: %w (order %s left without invoice: %v)", err, order.ID, delErr)
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	return &CreateOrderResult{Order: order, Invoice: invoice, Measurement: measurement}, nil
}

// createMeasurement inserts a measurement sheet, retrying when a concurrent
// intake claims the same sequence number.
func (s *OrderService) createMeasurement(ctx context.Context, req CreateOrderRequest) (database.Measurement, error) {
	m := req.Measurement
	unit := m.Unit
	if unit == "" {
		unit = enum.MeasurementUnitInches
	}

	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		next, err := s.store.NextMeasurementNumber(ctx)
		if err != nil {
			return database.Measurement{}, fmt.Errorf("next measurement number: %w", err)
		}
		rec, err := s.store.CreateMeasurement(ctx, database.CreateMeasurementParams{
			SequenceNumber: fmt.Sprintf("MS-%03d", next),
			ClientName:     req.ClientName,
			Phone:          req.Phone,
			Shoulder:       textOrNull(m.Shoulder),
			Chest:          textOrNull(m.Chest),
			Waist:          textOrNull(m.Waist),
			Hip:            textOrNull(m.Hip),
			SleeveLength:   textOrNull(m.SleeveLength),
			TopLength:      textOrNull(m.TopLength),
			Unit:           unit,
			Notes:          textOrNull(m.Notes),
		})
		if err == nil {
			return rec, nil
		}
		if !isSequenceConflict(err) {
			return database.Measurement{}, fmt.Errorf("create measurement: %w", err)
		}
		lastErr = err
	}
	return database.Measurement{}, fmt.Errorf("create measurement: %w", lastErr)
}

// createInvoice inserts the order's invoice with the same retry discipline.
func (s *OrderService) createInvoice(ctx context.Context, orderID uuid.UUID, total decimal.Decimal, dueDate pgtype.Date) (database.Invoice, error) {
	var lastErr error
	for attempt := 0; attempt < maxSequenceRetries; attempt++ {
		next, err := s.store.NextInvoiceNumber(ctx)
		if err != nil {
			return database.Invoice{}, fmt.Errorf("next invoice number: %w", err)
		}
		inv, err := s.store.CreateInvoice(ctx, database.CreateInvoiceParams{
			OrderID:       orderID,
			InvoiceNumber: fmt.Sprintf("INV-%04d", next),
			TotalAmount:   database.DecimalToNumeric(total),
			PaidAmount:    database.DecimalToNumeric(decimal.Zero),
			Status:        enum.InvoiceStatusUnpaid,
			DueDate:       dueDate,
		})
		if err == nil {
			return inv, nil
		}
		if !isSequenceConflict(err) {
			return database.Invoice{}, err
		}
		lastErr = err
	}
	return database.Invoice{}, lastErr
}

// GetOrder fetches one order, applying the principal's view rights.
func (s *OrderService) GetOrder(ctx context.Context, pr policy.Principal, id uuid.UUID) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !s.policy.Can(pr, policy.ActionViewOrder, policy.TargetFor(order)) {
		return database.Order{}, ErrForbidden
	}
	return order, nil
}

// ListOrders returns the orders visible to the principal, intersected with
// any caller-supplied filters. A filter outside the principal's scope yields
// an empty list, not an error.
func (s *OrderService) ListOrders(ctx context.Context, pr policy.Principal, params database.ListOrdersParams) ([]database.Order, error) {
	scope := s.policy.ScopeFor(pr)
	if scope.Conflicts(params) {
		return []database.Order{}, nil
	}
	scope.Apply(&params)
	orders, err := s.store.ListOrders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []database.Order{}
	}
	return orders, nil
}

// ChangeStatus advances an order along the workshop sequence. The update is
// compare-and-swap on the status read here, so a concurrent transition
// surfaces as ErrStaleStatus instead of silently double-applying.
func (s *OrderService) ChangeStatus(ctx context.Context, pr policy.Principal, id uuid.UUID, next string) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !s.policy.Can(pr, policy.ActionTransitionOrder, policy.TargetFor(order)) {
		return database.Order{}, ErrForbidden
	}
	if !workflow.IsValid(next) {
		return database.Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, next)
	}
	if !workflow.CanTransition(order.Status, next) {
		return database.Order{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, next)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:             id,
		Status:         next,
		ExpectedStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStaleStatus
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// AssignTailor sets or clears the order's assigned tailor. An empty
// tailorID unassigns.
func (s *OrderService) AssignTailor(ctx context.Context, pr policy.Principal, id uuid.UUID, tailorID string) (database.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !s.policy.Can(pr, policy.ActionAssignTailor, policy.TargetFor(order)) {
		return database.Order{}, ErrForbidden
	}

	assigned := pgtype.UUID{}
	if tailorID != "" {
		tid, err := uuid.Parse(tailorID)
		if err != nil {
			return database.Order{}, ErrInvalidTailorID
		}
		if err := s.checkTailor(ctx, tid); err != nil {
			return database.Order{}, err
		}
		assigned = pgtype.UUID{Bytes: tid, Valid: true}
	}

	updated, err := s.store.AssignOrderTailor(ctx, database.AssignOrderTailorParams{
		ID:               id,
		AssignedTailorID: assigned,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("assign tailor: %w", err)
	}
	return updated, nil
}

// StatusCounts returns order counts per status within the principal's scope.
func (s *OrderService) StatusCounts(ctx context.Context, pr policy.Principal) ([]database.CountOrdersByStatusRow, error) {
	scope := s.policy.ScopeFor(pr)
	if scope.None {
		return []database.CountOrdersByStatusRow{}, nil
	}
	params := database.CountOrdersByStatusParams{}
	if scope.TailorID != uuid.Nil {
		params.AssignedTailorID = pgtype.UUID{Bytes: scope.TailorID, Valid: true}
	}
	if scope.Location != "" {
		params.Location = pgtype.Text{String: scope.Location, Valid: true}
	}
	rows, err := s.store.CountOrdersByStatus(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	if rows == nil {
		rows = []database.CountOrdersByStatusRow{}
	}
	return rows, nil
}

// checkTailor verifies the user exists and holds the tailor role.
func (s *OrderService) checkTailor(ctx context.Context, id uuid.UUID) error {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTailorNotFound
		}
		return fmt.Errorf("get tailor: %w", err)
	}
	if user.Role != enum.UserRoleTailor {
		return ErrNotATailor
	}
	return nil
}

// isSequenceConflict checks for a unique constraint violation (pgconn error
// code 23505) on a generated sequence number.
func isSequenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
