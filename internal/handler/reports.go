package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/atelierhq/api/internal/billing"
	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ReportsStore defines the database methods needed by report handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ReportsStore interface {
	ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error)
}

// StatusCounter provides scoped order counts per status.
// Satisfied by *service.OrderService.
type StatusCounter interface {
	StatusCounts(ctx context.Context, pr policy.Principal) ([]database.CountOrdersByStatusRow, error)
}

// ReportsHandler handles dashboard and finance summary endpoints.
type ReportsHandler struct {
	store   ReportsStore
	counter StatusCounter
	policy  policy.Policy
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(store ReportsStore, counter StatusCounter, p policy.Policy) *ReportsHandler {
	return &ReportsHandler{store: store, counter: counter, policy: p}
}

// RegisterRoutes registers report endpoints on the given Chi router.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/finance", h.FinanceSummary)
	r.Get("/dashboard", h.Dashboard)
}

// --- Response types ---

type statusCountResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type dashboardResponse struct {
	Orders []statusCountResponse `json:"orders"`
}

// --- Handlers ---

// FinanceSummary returns revenue and pending totals over the invoices
// visible to the caller. Cancelled invoices are excluded from both figures.
func (h *ReportsHandler) FinanceSummary(w http.ResponseWriter, r *http.Request) {
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
	scope := h.policy.ScopeFor(pr)
	if scope.Location != "" {
		params.Location = pgtype.Text{String: scope.Location, Valid: true}
	}

	rows, err := h.store.ListInvoices(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: finance summary: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	lines := make([]billing.Line, len(rows))
	for i, row := range rows {
		lines[i] = billing.Line{
			Status: row.Status,
			Total:  database.NumericToDecimal(row.TotalAmount),
			Paid:   database.NumericToDecimal(row.PaidAmount),
		}
	}

	writeJSON(w, http.StatusOK, billing.Summarize(lines))
}

// Dashboard returns order counts per status within the caller's scope.
func (h *ReportsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	rows, err := h.counter.StatusCounts(r.Context(), principalFrom(claims))
	if err != nil {
		log.Printf("ERROR: dashboard: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	counts := make([]statusCountResponse, len(rows))
	for i, row := range rows {
		counts[i] = statusCountResponse{Status: row.Status, Count: row.Count}
	}

	writeJSON(w, http.StatusOK, dashboardResponse{Orders: counts})
}
