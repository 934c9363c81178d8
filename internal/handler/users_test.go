package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/atelierhq/api/internal/auth"
	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/atelierhq/api/internal/handler"
	"github.com/atelierhq/api/internal/middleware"
	"github.com/atelierhq/api/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type mockUserStore struct {
	listUsersFn      func(ctx context.Context) ([]database.User, error)
	listTailorsFn    func(ctx context.Context) ([]database.User, error)
	createUserFn     func(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	updateRoleFn     func(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error)
	updateLocationFn func(ctx context.Context, arg database.UpdateUserLocationParams) (database.User, error)
	deleteUserFn     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockUserStore) ListUsers(ctx context.Context) ([]database.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return []database.User{}, nil
}

func (m *mockUserStore) ListTailors(ctx context.Context) ([]database.User, error) {
	if m.listTailorsFn != nil {
		return m.listTailorsFn(ctx)
	}
	return []database.User{}, nil
}

func (m *mockUserStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) UpdateUserRole(ctx context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
	if m.updateRoleFn != nil {
		return m.updateRoleFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) UpdateUserLocation(ctx context.Context, arg database.UpdateUserLocationParams) (database.User, error) {
	if m.updateLocationFn != nil {
		return m.updateLocationFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockUserStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, id)
	}
	return pgx.ErrNoRows
}

func setupUserRouter(store *mockUserStore) *chi.Mux {
	h := handler.NewUserHandler(store, policy.Policy{LocationScoping: true})
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	r.Route("/users", h.RegisterRoutes)
	return r
}

func adminClaims() *auth.Claims {
	return &auth.Claims{
		UserID:   uuid.New(),
		Role:     enum.UserRoleAdmin,
		Location: enum.DefaultLocation,
	}
}

func testUser(role string) database.User {
	return database.User{
		ID:             uuid.New(),
		Name:           "Test User",
		Email:          "test@atelier.local",
		HashedPassword: "hashed",
		Role:           role,
		Location:       pgtype.Text{String: enum.DefaultLocation, Valid: true},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func TestUserCreate_DefaultsRoleAndLocation(t *testing.T) {
	var got database.CreateUserParams
	store := &mockUserStore{
		createUserFn: func(_ context.Context, arg database.CreateUserParams) (database.User, error) {
			got = arg
			u := testUser(arg.Role)
			u.Name = arg.Name
			u.Email = arg.Email
			return u, nil
		},
	}
	router := setupUserRouter(store)

	body := map[string]string{
		"email":    "new@atelier.local",
		"password": "secret123",
		"name":     "New Tailor",
	}
	rr := doAuthRequest(t, router, http.MethodPost, "/users", body, adminClaims())

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if got.Role != enum.UserRoleTailor {
		t.Errorf("role = %q, want tailor", got.Role)
	}
	if !got.Location.Valid || got.Location.String != enum.DefaultLocation {
		t.Errorf("location = %+v, want %q", got.Location, enum.DefaultLocation)
	}
	if got.HashedPassword == "secret123" {
		t.Error("password stored in plain text")
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := resp["hashed_password"]; ok {
		t.Error("response leaks hashed_password")
	}
}

func TestUserCreate_MissingFields(t *testing.T) {
	router := setupUserRouter(&mockUserStore{})

	body := map[string]string{"email": "new@atelier.local"}
	rr := doAuthRequest(t, router, http.MethodPost, "/users", body, adminClaims())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUserCreate_InvalidRole(t *testing.T) {
	router := setupUserRouter(&mockUserStore{})

	body := map[string]string{
		"email":    "new@atelier.local",
		"password": "secret123",
		"name":     "New User",
		"role":     "owner",
	}
	rr := doAuthRequest(t, router, http.MethodPost, "/users", body, adminClaims())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUserCreate_DuplicateEmail(t *testing.T) {
	store := &mockUserStore{
		createUserFn: func(context.Context, database.CreateUserParams) (database.User, error) {
			return database.User{}, &pgconn.PgError{Code: "23505"}
		},
	}
	router := setupUserRouter(store)

	body := map[string]string{
		"email":    "taken@atelier.local",
		"password": "secret123",
		"name":     "Dup User",
	}
	rr := doAuthRequest(t, router, http.MethodPost, "/users", body, adminClaims())
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rr.Code)
	}
}

func TestUserUpdateRole_SelfRejected(t *testing.T) {
	claims := adminClaims()
	store := &mockUserStore{
		updateRoleFn: func(context.Context, database.UpdateUserRoleParams) (database.User, error) {
			t.Fatal("store called for self role change")
			return database.User{}, nil
		},
	}
	router := setupUserRouter(store)

	body := map[string]string{"role": enum.UserRoleManager}
	rr := doAuthRequest(t, router, http.MethodPatch, "/users/"+claims.UserID.String()+"/role", body, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", rr.Code, rr.Body.String())
	}
}

func TestUserUpdateRole_HappyPath(t *testing.T) {
	target := testUser(enum.UserRoleTailor)
	store := &mockUserStore{
		updateRoleFn: func(_ context.Context, arg database.UpdateUserRoleParams) (database.User, error) {
			if arg.Role != enum.UserRoleManager {
				t.Errorf("role = %q, want manager", arg.Role)
			}
			target.Role = arg.Role
			return target, nil
		},
	}
	router := setupUserRouter(store)

	body := map[string]string{"role": enum.UserRoleManager}
	rr := doAuthRequest(t, router, http.MethodPatch, "/users/"+target.ID.String()+"/role", body, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestUserUpdateRole_NotFound(t *testing.T) {
	router := setupUserRouter(&mockUserStore{})

	body := map[string]string{"role": enum.UserRoleManager}
	rr := doAuthRequest(t, router, http.MethodPatch, "/users/"+uuid.NewString()+"/role", body, adminClaims())
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestUserUpdateLocation_HappyPath(t *testing.T) {
	target := testUser(enum.UserRoleTailor)
	store := &mockUserStore{
		updateLocationFn: func(_ context.Context, arg database.UpdateUserLocationParams) (database.User, error) {
			if arg.Location.String != "Unit 2" {
				t.Errorf("location = %q, want Unit 2", arg.Location.String)
			}
			target.Location = arg.Location
			return target, nil
		},
	}
	router := setupUserRouter(store)

	body := map[string]string{"location": "Unit 2"}
	rr := doAuthRequest(t, router, http.MethodPatch, "/users/"+target.ID.String()+"/location", body, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

func TestUserDelete_SelfRejected(t *testing.T) {
	claims := adminClaims()
	store := &mockUserStore{
		deleteUserFn: func(context.Context, uuid.UUID) error {
			t.Fatal("store called for self delete")
			return nil
		},
	}
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, http.MethodDelete, "/users/"+claims.UserID.String(), nil, claims)
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403: %s", rr.Code, rr.Body.String())
	}
}

func TestUserDelete_HappyPath(t *testing.T) {
	deleted := false
	store := &mockUserStore{
		deleteUserFn: func(context.Context, uuid.UUID) error {
			deleted = true
			return nil
		},
	}
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, http.MethodDelete, "/users/"+uuid.NewString(), nil, adminClaims())
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rr.Code, rr.Body.String())
	}
	if !deleted {
		t.Error("store delete not called")
	}
}

func TestUserList(t *testing.T) {
	store := &mockUserStore{
		listUsersFn: func(context.Context) ([]database.User, error) {
			return []database.User{testUser(enum.UserRoleAdmin), testUser(enum.UserRoleTailor)}, nil
		},
	}
	router := setupUserRouter(store)

	rr := doAuthRequest(t, router, http.MethodGet, "/users", nil, adminClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Errorf("got %d users, want 2", len(resp))
	}
}
