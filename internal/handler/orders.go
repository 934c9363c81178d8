package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/atelierhq/api/internal/service"
	"github.com/atelierhq/api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, pr policy.Principal, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	GetOrder(ctx context.Context, pr policy.Principal, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, pr policy.Principal, params database.ListOrdersParams) ([]database.Order, error)
	ChangeStatus(ctx context.Context, pr policy.Principal, id uuid.UUID, next string) (database.Order, error)
	AssignTailor(ctx context.Context, pr policy.Principal, id uuid.UUID, tailorID string) (database.Order, error)
}

// Broadcaster pushes order events to connected workshop dashboards.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastToLocation(location string, event ws.Event)
}

// OrderHandler handles order lifecycle endpoints.
type OrderHandler struct {
	svc OrderServicer
	hub Broadcaster
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, hub Broadcaster) *OrderHandler {
	return &OrderHandler{svc: svc, hub: hub}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/tailor", h.Assign)
}

// --- Request / Response types ---

type createOrderRequest struct {
	ClientName       string                   `json:"client_name"`
	Phone            string                   `json:"phone"`
	GarmentType      string                   `json:"garment_type"`
	DeliveryDate     string                   `json:"delivery_date"`
	AssignedTailorID string                   `json:"assigned_tailor_id"`
	Location         string                   `json:"location"`
	Notes            string                   `json:"notes"`
	TotalAmount      string                   `json:"total_amount"`
	DueDate          string                   `json:"due_date"`
	MeasurementID    string                   `json:"measurement_id"`
	Measurement      *measurementSheetRequest `json:"measurement"`
}

type measurementSheetRequest struct {
	Shoulder     string `json:"shoulder"`
	Chest        string `json:"chest"`
	Waist        string `json:"waist"`
	Hip          string `json:"hip"`
	SleeveLength string `json:"sleeve_length"`
	TopLength    string `json:"top_length"`
	Unit         string `json:"unit"`
	Notes        string `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type assignTailorRequest struct {
	TailorID string `json:"tailor_id"`
}

type orderResponse struct {
	ID               uuid.UUID `json:"id"`
	ClientName       string    `json:"client_name"`
	Phone            *string   `json:"phone"`
	GarmentType      string    `json:"garment_type"`
	DeliveryDate     string    `json:"delivery_date"`
	Status           string    `json:"status"`
	AssignedTailorID *string   `json:"assigned_tailor_id"`
	MeasurementID    *string   `json:"measurement_id"`
	Location         *string   `json:"location"`
	Notes            *string   `json:"notes"`
	CreatedBy        uuid.UUID `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type invoiceResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	InvoiceNumber string    `json:"invoice_number"`
	TotalAmount   string    `json:"total_amount"`
	PaidAmount    string    `json:"paid_amount"`
	Outstanding   string    `json:"outstanding"`
	Status        string    `json:"status"`
	DueDate       *string   `json:"due_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// createOrderResponse bundles what intake produced.
type createOrderResponse struct {
	Order       orderResponse        `json:"order"`
	Invoice     invoiceResponse      `json:"invoice"`
	Measurement *measurementResponse `json:"measurement,omitempty"`
}

func toOrderResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		ClientName:   o.ClientName,
		GarmentType:  o.GarmentType,
		DeliveryDate: o.DeliveryDate.Format("2006-01-02"),
		Status:       o.Status,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if o.Phone.Valid {
		resp.Phone = &o.Phone.String
	}
	if o.AssignedTailorID.Valid {
		s := uuid.UUID(o.AssignedTailorID.Bytes).String()
		resp.AssignedTailorID = &s
	}
	if o.MeasurementID.Valid {
		s := uuid.UUID(o.MeasurementID.Bytes).String()
		resp.MeasurementID = &s
	}
	if o.Location.Valid {
		resp.Location = &o.Location.String
	}
	if o.Notes.Valid {
		resp.Notes = &o.Notes.String
	}
	return resp
}

// --- Handlers ---

// Create handles POST /orders: the intake sequence of measurement, order,
// and invoice.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateOrderRequest{
		ClientName:       req.ClientName,
		Phone:            req.Phone,
		GarmentType:      req.GarmentType,
		DeliveryDate:     req.DeliveryDate,
		AssignedTailorID: req.AssignedTailorID,
		Location:         req.Location,
		Notes:            req.Notes,
		TotalAmount:      req.TotalAmount,
		DueDate:          req.DueDate,
		MeasurementID:    req.MeasurementID,
	}
	if req.Measurement != nil {
		svcReq.Measurement = &service.MeasurementInput{
			Shoulder:     req.Measurement.Shoulder,
			Chest:        req.Measurement.Chest,
			Waist:        req.Measurement.Waist,
			Hip:          req.Measurement.Hip,
			SleeveLength: req.Measurement.SleeveLength,
			TopLength:    req.Measurement.TopLength,
			Unit:         req.Measurement.Unit,
			Notes:        req.Measurement.Notes,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), principalFrom(claims), svcReq)
	if err != nil {
		h.writeServiceError(w, "create order", err)
		return
	}

	resp := createOrderResponse{
		Order:   toOrderResponse(result.Order),
		Invoice: toInvoiceResponse(result.Invoice),
	}
	if result.Measurement != nil {
		m := toMeasurementResponse(*result.Measurement)
		resp.Measurement = &m
	}

	h.broadcast(result.Order, "order.created")
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders with optional status, tailor, location, and
// search filters. Visibility scoping happens in the service.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	params := database.ListOrdersParams{}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("tailor_id"); s != "" {
		tid, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tailor_id"})
			return
		}
		params.AssignedTailorID = pgtype.UUID{Bytes: tid, Valid: true}
	}
	if s := q.Get("location"); s != "" {
		params.Location = pgtype.Text{String: s, Valid: true}
	}
	if s := q.Get("search"); s != "" {
		params.Search = pgtype.Text{String: s, Valid: true}
	}

	orders, err := h.svc.ListOrders(r.Context(), principalFrom(claims), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.GetOrder(r.Context(), principalFrom(claims), id)
	if err != nil {
		h.writeServiceError(w, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	updated, err := h.svc.ChangeStatus(r.Context(), principalFrom(claims), id, req.Status)
	if err != nil {
		h.writeServiceError(w, "update order status", err)
		return
	}

	h.broadcast(updated, "order.status_changed")
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// Assign handles PATCH /orders/{id}/tailor. An empty tailor_id unassigns.
func (h *OrderHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req assignTailorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.svc.AssignTailor(r.Context(), principalFrom(claims), id, req.TailorID)
	if err != nil {
		h.writeServiceError(w, "assign tailor", err)
		return
	}

	h.broadcast(updated, "order.assigned")
	writeJSON(w, http.StatusOK, toOrderResponse(updated))
}

// --- Helpers ---

// writeServiceError maps service errors to HTTP status codes.
func (h *OrderHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, service.ErrStaleStatus):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order status changed, please retry"})
	case errors.Is(err, service.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case isOrderValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// isOrderValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isOrderValidationError(err error) bool {
	return errors.Is(err, service.ErrClientNameRequired) ||
		errors.Is(err, service.ErrGarmentRequired) ||
		errors.Is(err, service.ErrInvalidDeliveryDate) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrInvalidDueDate) ||
		errors.Is(err, service.ErrInvalidStatus) ||
		errors.Is(err, service.ErrInvalidTailorID) ||
		errors.Is(err, service.ErrInvalidMeasurement) ||
		errors.Is(err, service.ErrTailorNotFound) ||
		errors.Is(err, service.ErrNotATailor)
}

// broadcast pushes an order event to the dashboards watching its unit.
func (h *OrderHandler) broadcast(o database.Order, eventType string) {
	if h.hub == nil || !o.Location.Valid {
		return
	}
	payload, err := json.Marshal(toOrderResponse(o))
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.hub.BroadcastToLocation(o.Location.String, ws.Event{Type: eventType, Payload: payload})
}
