package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/atelierhq/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ClientStore defines the database methods needed by client handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type ClientStore interface {
	CreateClient(ctx context.Context, arg database.CreateClientParams) (database.Client, error)
	GetClient(ctx context.Context, id uuid.UUID) (database.Client, error)
	ListClients(ctx context.Context, search pgtype.Text) ([]database.Client, error)
	UpdateClient(ctx context.Context, arg database.UpdateClientParams) (database.Client, error)
	DeleteClient(ctx context.Context, id uuid.UUID) error
}

// ClientHandler handles the client book endpoints.
type ClientHandler struct {
	store ClientStore
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(store ClientStore) *ClientHandler {
	return &ClientHandler{store: store}
}

// RegisterRoutes registers client book endpoints on the given Chi router.
func (h *ClientHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type clientRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type clientResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email"`
	Address   *string   `json:"address"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toClientResponse(c database.Client) clientResponse {
	resp := clientResponse{
		ID:        c.ID,
		Name:      c.Name,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.Email.Valid {
		resp.Email = &c.Email.String
	}
	if c.Address.Valid {
		resp.Address = &c.Address.String
	}
	if c.Notes.Valid {
		resp.Notes = &c.Notes.String
	}
	return resp
}

// --- Handlers ---

// List returns clients, optionally filtered by a name or phone search.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	search := pgtype.Text{}
	if s := r.URL.Query().Get("search"); s != "" {
		search = pgtype.Text{String: s, Valid: true}
	}

	clients, err := h.store.ListClients(r.Context(), search)
	if err != nil {
		log.Printf("ERROR: list clients: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]clientResponse, len(clients))
	for i, c := range clients {
		resp[i] = toClientResponse(c)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create adds a client to the book.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	client, err := h.store.CreateClient(r.Context(), database.CreateClientParams{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   textOrNull(req.Email),
		Address: textOrNull(req.Address),
		Notes:   textOrNull(req.Notes),
	})
	if err != nil {
		log.Printf("ERROR: create client: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

// Get returns one client.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client ID"})
		return
	}

	client, err := h.store.GetClient(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
			return
		}
		log.Printf("ERROR: get client: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// Update modifies a client record.
func (h *ClientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client ID"})
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and phone are required"})
		return
	}

	client, err := h.store.UpdateClient(r.Context(), database.UpdateClientParams{
		ID:      id,
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   textOrNull(req.Email),
		Address: textOrNull(req.Address),
		Notes:   textOrNull(req.Notes),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
			return
		}
		log.Printf("ERROR: update client: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(client))
}

// Delete removes a client from the book.
func (h *ClientHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client ID"})
		return
	}

	if err := h.store.DeleteClient(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "client not found"})
			return
		}
		log.Printf("ERROR: delete client: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
