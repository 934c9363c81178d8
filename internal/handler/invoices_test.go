package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/atelierhq/api/internal/handler"
	"github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type mockInvoiceStore struct {
	getInvoiceFn        func(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	getInvoiceByOrderFn func(ctx context.Context, orderID uuid.UUID) (database.Invoice, error)
	getLocationFn       func(ctx context.Context, id uuid.UUID) (pgtype.Text, error)
	listInvoicesFn      func(ctx context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error)
	updatePaymentFn     func(ctx context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error)
	cancelFn            func(ctx context.Context, id uuid.UUID) (database.Invoice, error)
	createPaymentFn     func(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	listPaymentsFn      func(ctx context.Context, invoiceID uuid.UUID) ([]database.Payment, error)
	sumPaymentsFn       func(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error)
}

func (m *mockInvoiceStore) GetInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
	if m.getInvoiceFn != nil {
		return m.getInvoiceFn(ctx, id)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) GetInvoiceByOrder(ctx context.Context, orderID uuid.UUID) (database.Invoice, error) {
	if m.getInvoiceByOrderFn != nil {
		return m.getInvoiceByOrderFn(ctx, orderID)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) GetInvoiceLocation(ctx context.Context, id uuid.UUID) (pgtype.Text, error) {
	if m.getLocationFn != nil {
		return m.getLocationFn(ctx, id)
	}
	return pgtype.Text{String: enum.DefaultLocation, Valid: true}, nil
}

func (m *mockInvoiceStore) ListInvoices(ctx context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error) {
	if m.listInvoicesFn != nil {
		return m.listInvoicesFn(ctx, arg)
	}
	return []database.ListInvoicesRow{}, nil
}

func (m *mockInvoiceStore) UpdateInvoicePayment(ctx context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error) {
	if m.updatePaymentFn != nil {
		return m.updatePaymentFn(ctx, arg)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) CancelInvoice(ctx context.Context, id uuid.UUID) (database.Invoice, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id)
	}
	return database.Invoice{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
	if m.createPaymentFn != nil {
		return m.createPaymentFn(ctx, arg)
	}
	return database.Payment{}, pgx.ErrNoRows
}

func (m *mockInvoiceStore) ListPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]database.Payment, error) {
	if m.listPaymentsFn != nil {
		return m.listPaymentsFn(ctx, invoiceID)
	}
	return []database.Payment{}, nil
}

func (m *mockInvoiceStore) SumPaymentsByInvoice(ctx context.Context, invoiceID uuid.UUID) (pgtype.Numeric, error) {
	if m.sumPaymentsFn != nil {
		return m.sumPaymentsFn(ctx, invoiceID)
	}
	return database.DecimalToNumeric(decimal.Zero), nil
}

func setupInvoiceRouter(store *mockInvoiceStore) *chi.Mux {
	h := handler.NewInvoiceHandler(store, policy.Policy{LocationScoping: true})
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/invoices", h.RegisterRoutes)
	return r
}

func testInvoice(status, total, paid string) database.Invoice {
	return database.Invoice{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		InvoiceNumber: "INV-0042",
		TotalAmount:   database.DecimalToNumeric(decimal.RequireFromString(total)),
		PaidAmount:    database.DecimalToNumeric(decimal.RequireFromString(paid)),
		Status:        status,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestRecordPayment_RecomputesFromLedger(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusPartiallyPaid, "500.00", "100.00")
	var updateArg database.UpdateInvoicePaymentParams
	store := &mockInvoiceStore{
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
		createPaymentFn: func(_ context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
			if arg.Method != enum.PaymentMethodCash {
				t.Errorf("method = %q, want cash", arg.Method)
			}
			if !arg.RecordedBy.Valid {
				t.Error("recorded_by not set")
			}
			return database.Payment{ID: uuid.New(), InvoiceID: inv.ID, Amount: arg.Amount, Method: arg.Method, PaidAt: arg.PaidAt, RecordedBy: arg.RecordedBy}, nil
		},
		// The ledger sum, not current paid + amount, drives the stored total.
		sumPaymentsFn: func(context.Context, uuid.UUID) (pgtype.Numeric, error) {
			return database.DecimalToNumeric(decimal.RequireFromString("300.00")), nil
		},
		updatePaymentFn: func(_ context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error) {
			updateArg = arg
			updated := inv
			updated.PaidAmount = arg.PaidAmount
			updated.Status = arg.Status
			return updated, nil
		},
	}
	router := setupInvoiceRouter(store)

	body := map[string]string{"amount": "200.00", "method": enum.PaymentMethodCash}
	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments", body, managerClaims())

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if got := database.NumericToDecimal(updateArg.PaidAmount); !got.Equal(decimal.RequireFromString("300.00")) {
		t.Errorf("stored paid amount = %s, want 300.00", got)
	}
	if updateArg.Status != enum.InvoiceStatusPartiallyPaid {
		t.Errorf("derived status = %q, want partially_paid", updateArg.Status)
	}

	var resp struct {
		Invoice struct {
			PaidAmount  string `json:"paid_amount"`
			Outstanding string `json:"outstanding"`
			Status      string `json:"status"`
		} `json:"invoice"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Invoice.Outstanding != "200.00" {
		t.Errorf("outstanding = %q, want 200.00", resp.Invoice.Outstanding)
	}
}

func TestRecordPayment_SettlesInvoice(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusPartiallyPaid, "500.00", "400.00")
	store := &mockInvoiceStore{
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
		createPaymentFn: func(_ context.Context, arg database.CreatePaymentParams) (database.Payment, error) {
			return database.Payment{ID: uuid.New(), InvoiceID: inv.ID, Amount: arg.Amount, Method: arg.Method, PaidAt: arg.PaidAt}, nil
		},
		sumPaymentsFn: func(context.Context, uuid.UUID) (pgtype.Numeric, error) {
			return database.DecimalToNumeric(decimal.RequireFromString("500.00")), nil
		},
		updatePaymentFn: func(_ context.Context, arg database.UpdateInvoicePaymentParams) (database.Invoice, error) {
			if arg.Status != enum.InvoiceStatusPaid {
				t.Errorf("derived status = %q, want paid", arg.Status)
			}
			updated := inv
			updated.PaidAmount = arg.PaidAmount
			updated.Status = arg.Status
			return updated, nil
		},
	}
	router := setupInvoiceRouter(store)

	body := map[string]string{"amount": "100.00", "method": enum.PaymentMethodTransfer}
	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments", body, managerClaims())
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
}

func TestRecordPayment_CancelledInvoice(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusCancelled, "500.00", "0.00")
	store := &mockInvoiceStore{
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
		createPaymentFn: func(context.Context, database.CreatePaymentParams) (database.Payment, error) {
			t.Fatal("payment created on cancelled invoice")
			return database.Payment{}, nil
		},
	}
	router := setupInvoiceRouter(store)

	body := map[string]string{"amount": "100.00", "method": enum.PaymentMethodCash}
	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments", body, managerClaims())
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
}

func TestRecordPayment_InvalidAmount(t *testing.T) {
	router := setupInvoiceRouter(&mockInvoiceStore{})

	for _, amount := range []string{"", "0", "-50", "abc"} {
		body := map[string]string{"amount": amount, "method": enum.PaymentMethodCash}
		rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+uuid.NewString()+"/payments", body, managerClaims())
		if rr.Code != http.StatusBadRequest {
			t.Errorf("amount %q: status = %d, want 400", amount, rr.Code)
		}
	}
}

func TestRecordPayment_InvalidMethod(t *testing.T) {
	router := setupInvoiceRouter(&mockInvoiceStore{})

	body := map[string]string{"amount": "100.00", "method": "barter"}
	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+uuid.NewString()+"/payments", body, managerClaims())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestInvoiceList_TailorForbidden(t *testing.T) {
	store := &mockInvoiceStore{
		listInvoicesFn: func(context.Context, database.ListInvoicesParams) ([]database.ListInvoicesRow, error) {
			t.Fatal("store queried for tailor")
			return nil, nil
		},
	}
	router := setupInvoiceRouter(store)

	claims := managerClaims()
	claims.Role = enum.UserRoleTailor
	rr := doAuthRequest(t, router, http.MethodGet, "/invoices", nil, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestInvoiceList_ManagerScopedToLocation(t *testing.T) {
	var got database.ListInvoicesParams
	store := &mockInvoiceStore{
		listInvoicesFn: func(_ context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error) {
			got = arg
			return []database.ListInvoicesRow{}, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodGet, "/invoices?status=unpaid", nil, managerClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if !got.Location.Valid || got.Location.String != enum.DefaultLocation {
		t.Errorf("location filter = %+v, want %q", got.Location, enum.DefaultLocation)
	}
	if !got.Status.Valid || got.Status.String != enum.InvoiceStatusUnpaid {
		t.Errorf("status filter = %+v, want unpaid", got.Status)
	}
}

func TestInvoiceList_AdminUnscoped(t *testing.T) {
	var got database.ListInvoicesParams
	store := &mockInvoiceStore{
		listInvoicesFn: func(_ context.Context, arg database.ListInvoicesParams) ([]database.ListInvoicesRow, error) {
			got = arg
			return []database.ListInvoicesRow{}, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodGet, "/invoices", nil, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if got.Location.Valid {
		t.Errorf("location filter = %+v, want unset for admin", got.Location)
	}
}

func TestInvoiceGet_ByOrder(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusUnpaid, "500.00", "0.00")
	store := &mockInvoiceStore{
		getInvoiceByOrderFn: func(_ context.Context, orderID uuid.UUID) (database.Invoice, error) {
			if orderID != inv.OrderID {
				t.Errorf("order_id = %s, want %s", orderID, inv.OrderID)
			}
			return inv, nil
		},
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			t.Fatal("lookup by invoice ID instead of order")
			return database.Invoice{}, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodGet, "/invoices/"+inv.OrderID.String()+"?by=order", nil, managerClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestInvoiceCancel_HappyPath(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusCancelled, "500.00", "100.00")
	store := &mockInvoiceStore{
		cancelFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/cancel", nil, managerClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != enum.InvoiceStatusCancelled {
		t.Errorf("status = %v, want cancelled", resp["status"])
	}
}

func TestInvoiceCancel_SettledRejected(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusPaid, "500.00", "500.00")
	store := &mockInvoiceStore{
		cancelFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return database.Invoice{}, pgx.ErrNoRows
		},
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/cancel", nil, managerClaims())
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409: %s", rr.Code, rr.Body.String())
	}
}

func TestInvoiceCancel_NotFound(t *testing.T) {
	store := &mockInvoiceStore{
		getLocationFn: func(context.Context, uuid.UUID) (pgtype.Text, error) {
			return pgtype.Text{}, pgx.ErrNoRows
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodPost, "/invoices/"+uuid.NewString()+"/cancel", nil, managerClaims())
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestInvoiceCrossUnitManagerDenied(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusUnpaid, "500.00", "0.00")
	store := &mockInvoiceStore{
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
		getLocationFn: func(context.Context, uuid.UUID) (pgtype.Text, error) {
			return pgtype.Text{String: "Unit 2", Valid: true}, nil
		},
		createPaymentFn: func(context.Context, database.CreatePaymentParams) (database.Payment, error) {
			t.Fatal("payment recorded across units")
			return database.Payment{}, nil
		},
		cancelFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			t.Fatal("invoice cancelled across units")
			return database.Invoice{}, nil
		},
	}
	router := setupInvoiceRouter(store)
	claims := managerClaims() // Unit 1

	rr := doAuthRequest(t, router, http.MethodGet, "/invoices/"+inv.ID.String(), nil, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("get: status = %d, want 403", rr.Code)
	}

	body := map[string]string{"amount": "100.00", "method": enum.PaymentMethodCash}
	rr = doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/payments", body, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("record payment: status = %d, want 403", rr.Code)
	}

	rr = doAuthRequest(t, router, http.MethodPost, "/invoices/"+inv.ID.String()+"/cancel", nil, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("cancel: status = %d, want 403", rr.Code)
	}
}

func TestInvoiceCrossUnitAdminAllowed(t *testing.T) {
	inv := testInvoice(enum.InvoiceStatusUnpaid, "500.00", "0.00")
	store := &mockInvoiceStore{
		getInvoiceFn: func(context.Context, uuid.UUID) (database.Invoice, error) {
			return inv, nil
		},
		getLocationFn: func(context.Context, uuid.UUID) (pgtype.Text, error) {
			return pgtype.Text{String: "Unit 2", Valid: true}, nil
		},
	}
	router := setupInvoiceRouter(store)

	rr := doAuthRequest(t, router, http.MethodGet, "/invoices/"+inv.ID.String(), nil, adminClaims())
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}
