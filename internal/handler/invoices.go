package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/atelierhq/api/internal/billing"
	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// InvoiceStore defines the database methods needed by invoice handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (database.Invoice, error)
	GetInvoiceLocation(ctx context.Context, id uuid.UUID) (pgtype.Text, error)
	ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error)
	UpdateInvoicePayment(ctx context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error)
	CancelInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	ListPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.Payment, error)
	SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error)
}

// InvoiceHandler handles invoice and payment endpoints.
type InvoiceHandler struct {
	store  InvoiceStore
	policy policy.Policy
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(store InvoiceStore, p policy.Policy) *InvoiceHandler {
	return &InvoiceHandler{store: store, policy: p}
}

// RegisterRoutes registers invoice endpoints on the given Chi router.
func (h *InvoiceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/payments", h.RecordPayment)
	r.Get("/{id}/payments", h.ListPayments)
	r.Post("/{id}/cancel", h.Cancel)
}

// --- Request / Response types ---

type recordPaymentRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
	Notes  string `json:"notes"`
}

type paymentResponse struct {
	ID         uuid.UUID `json:"id"`
	InvoiceID  uuid.UUID `json:"invoice_id"`
	Amount     string    `json:"amount"`
	Method     string    `json:"method"`
	PaidAt     time.Time `json:"paid_at"`
	RecordedBy *string   `json:"recorded_by"`
	Notes      *string   `json:"notes"`
}

type invoiceListItemResponse struct {
	invoiceResponse
	ClientName string `json:"client_name"`
}

type recordPaymentResponse struct {
	Invoice invoiceResponse `json:"invoice"`
	Payment paymentResponse `json:"payment"`
}

func toInvoiceResponse(inv database.Invoice) invoiceResponse {
	total := database.NumericToDecimal(inv.TotalAmount)
	paid := database.NumericToDecimal(inv.PaidAmount)
	resp := invoiceResponse{
		ID:            inv.ID,
		OrderID:       inv.OrderID,
		InvoiceNumber: inv.InvoiceNumber,
		TotalAmount:   total.StringFixed(2),
		PaidAmount:    paid.StringFixed(2),
		Outstanding:   billing.Outstanding(total, paid).StringFixed(2),
		Status:        inv.Status,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	if inv.DueDate.Valid {
		s := inv.DueDate.Time.Format("2006-01-02")
		resp.DueDate = &s
	}
	return resp
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:        p.ID,
		InvoiceID: p.InvoiceID,
		Amount:    database.NumericToDecimal(p.Amount).StringFixed(2),
		Method:    p.Method,
		PaidAt:    p.PaidAt,
	}
	if p.RecordedBy.Valid {
		s := uuid.UUID(p.RecordedBy.Bytes).String()
		resp.RecordedBy = &s
	}
	if p.Notes.Valid {
		resp.Notes = &p.Notes.String
	}
	return resp
}

// --- Handlers ---

// List handles GET /invoices with optional status filter. Managers see only
// their unit's invoices when location scoping is on.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	pr := principalFrom(claims)
	if !h.policy.Can(pr, policy.ActionViewFinance, policy.Target{}) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	params := database.ListInvoicesParams{}
	if s := r.URL.Query().Get("status"); s != "" {
		params.Status = pgtype.Text{String: s, Valid: true}
	}
	scope := h.policy.ScopeFor(pr)
	if scope.Location != "" {
		params.Location = pgtype.Text{String: scope.Location, Valid: true}
	}

	rows, err := h.store.ListInvoices(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list invoices: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]invoiceListItemResponse, len(rows))
	for i, row := range rows {
		resp[i] = invoiceListItemResponse{
			invoiceResponse: toInvoiceResponse(row.Invoice),
			ClientName:      row.ClientName,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /invoices/{id}. Accepts an order_id lookup via
// ?by=order for intake screens holding only the order reference.
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	var inv database.Invoice
	if r.URL.Query().Get("by") == "order" {
		inv, err = h.store.GetInvoiceByOrder(r.Context(), id)
	} else {
		inv, err = h.store.GetInvoice(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	allowed, err := h.allowedInvoice(r.Context(), principalFrom(claims), inv.ID)
	if err != nil {
		log.Printf("ERROR: get invoice location: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// RecordPayment handles POST /invoices/{id}/payments. The invoice's paid
// amount is always recomputed from the payment ledger sum, never
// incremented, so a retried request cannot double-count.
func (h *InvoiceHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be a positive number"})
		return
	}
	if !isValidPaymentMethod(req.Method) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payment method"})
		return
	}

	inv, err := h.store.GetInvoice(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice for payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	allowed, err := h.allowedInvoice(r.Context(), principalFrom(claims), id)
	if err != nil {
		log.Printf("ERROR: get invoice location: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	if inv.Status == enum.InvoiceStatusCancelled {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot record a payment on a cancelled invoice"})
		return
	}

	payment, err := h.store.CreatePayment(r.Context(), database.CreatePaymentParams{
		InvoiceID:  id,
		Amount:     database.DecimalToNumeric(amount),
		Method:     req.Method,
		PaidAt:     time.Now().UTC(),
		RecordedBy: pgtype.UUID{Bytes: claims.UserID, Valid: true},
		Notes:      textOrNull(req.Notes),
	})
	if err != nil {
		log.Printf("ERROR: create payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	paidSum, err := h.store.SumPaymentsByInvoice(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: sum payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total := database.NumericToDecimal(inv.TotalAmount)
	paid := database.NumericToDecimal(paidSum)
	status := billing.DeriveStatus(inv.Status, total, paid)

	updated, err := h.store.UpdateInvoicePayment(r.Context(), database.UpdateInvoicePaymentParams{
		ID:         id,
		PaidAmount: database.DecimalToNumeric(paid),
		Status:     status,
	})
	if err != nil {
		log.Printf("ERROR: update invoice payment: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, recordPaymentResponse{
		Invoice: toInvoiceResponse(updated),
		Payment: toPaymentResponse(payment),
	})
}

// ListPayments handles GET /invoices/{id}/payments.
func (h *InvoiceHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	payments, err := h.store.ListPaymentsByInvoice(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: list payments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]paymentResponse, len(payments))
	for i, p := range payments {
		resp[i] = toPaymentResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /invoices/{id}/cancel. The SQL enforces the
// precondition atomically: a settled invoice cannot be cancelled.
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid invoice ID"})
		return
	}

	allowed, err := h.allowedInvoice(r.Context(), principalFrom(claims), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
			return
		}
		log.Printf("ERROR: get invoice location: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !allowed {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		return
	}

	cancelled, err := h.store.CancelInvoice(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the invoice doesn't exist or it is already paid.
			// Fetch to give a better error message.
			current, fetchErr := h.store.GetInvoice(r.Context(), id)
			if fetchErr != nil {
				if errors.Is(fetchErr, pgx.ErrNoRows) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "invoice not found"})
					return
				}
				log.Printf("ERROR: get invoice for cancel: %v", fetchErr)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}
			if current.Status == enum.InvoiceStatusPaid {
				writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot cancel a settled invoice"})
				return
			}
			writeJSON(w, http.StatusConflict, map[string]string{"error": "invoice cannot be cancelled"})
			return
		}
		log.Printf("ERROR: cancel invoice: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(cancelled))
}

// --- Helpers ---

// allowedInvoice checks the caller against the owning order's unit, mirroring
// the location join the listing endpoints apply.
func (h *InvoiceHandler) allowedInvoice(ctx context.Context, pr policy.Principal, invoiceID uuid.UUID) (bool, error) {
	location, err := h.store.GetInvoiceLocation(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	target := policy.Target{}
	if location.Valid {
		target.Location = location.String
	}
	return h.policy.Can(pr, policy.ActionViewFinance, target), nil
}

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodTransfer, enum.PaymentMethodCard:
		return true
	}
	return false
}
