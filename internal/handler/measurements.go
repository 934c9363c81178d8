package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/atelierhq/api/internal/database"
	"github.com/atelierhq/api/internal/enum"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const maxMeasurementRetries = 3

// MeasurementStore defines the database methods needed by measurement handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MeasurementStore interface {
	NextMeasurementNumber(ctx context.Context) (int32, error)
	CreateMeasurement(ctx context.Context, arg database.CreateMeasurementParams) (database.Measurement, error)
	GetMeasurement(ctx context.Context, id uuid.UUID) (database.Measurement, error)
	ListMeasurements(ctx context.Context, search pgtype.Text) ([]database.Measurement, error)
	DeleteMeasurement(ctx context.Context, id uuid.UUID) error
}

// MeasurementHandler handles standalone measurement sheet endpoints.
// Sheets recorded during order intake go through the order service instead.
type MeasurementHandler struct {
	store MeasurementStore
}

// NewMeasurementHandler creates a new MeasurementHandler.
func NewMeasurementHandler(store MeasurementStore) *MeasurementHandler {
	return &MeasurementHandler{store: store}
}

// RegisterRoutes registers measurement endpoints on the given Chi router.
func (h *MeasurementHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createMeasurementRequest struct {
	ClientName   string `json:"client_name"`
	Phone        string `json:"phone"`
	Shoulder     string `json:"shoulder"`
	Chest        string `json:"chest"`
	Waist        string `json:"waist"`
	Hip          string `json:"hip"`
	SleeveLength string `json:"sleeve_length"`
	TopLength    string `json:"top_length"`
	Unit         string `json:"unit"`
	Notes        string `json:"notes"`
}

type measurementResponse struct {
	ID             uuid.UUID `json:"id"`
	SequenceNumber string    `json:"sequence_number"`
	ClientName     string    `json:"client_name"`
	Phone          string    `json:"phone"`
	Shoulder       *string   `json:"shoulder"`
	Chest          *string   `json:"chest"`
	Waist          *string   `json:"waist"`
	Hip            *string   `json:"hip"`
	SleeveLength   *string   `json:"sleeve_length"`
	TopLength      *string   `json:"top_length"`
	Unit           string    `json:"unit"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
}

func toMeasurementResponse(m database.Measurement) measurementResponse {
	resp := measurementResponse{
		ID:             m.ID,
		SequenceNumber: m.SequenceNumber,
		ClientName:     m.ClientName,
		Phone:          m.Phone,
		Unit:           m.Unit,
		CreatedAt:      m.CreatedAt,
	}
	if m.Shoulder.Valid {
		resp.Shoulder = &m.Shoulder.String
	}
	if m.Chest.Valid {
		resp.Chest = &m.Chest.String
	}
	if m.Waist.Valid {
		resp.Waist = &m.Waist.String
	}
	if m.Hip.Valid {
		resp.Hip = &m.Hip.String
	}
	if m.SleeveLength.Valid {
		resp.SleeveLength = &m.SleeveLength.String
	}
	if m.TopLength.Valid {
		resp.TopLength = &m.TopLength.String
	}
	if m.Notes.Valid {
		resp.Notes = &m.Notes.String
	}
	return resp
}

// --- Handlers ---

// List returns measurement sheets, optionally filtered by client name or phone.
func (h *MeasurementHandler) List(w http.ResponseWriter, r *http.Request) {
	search := pgtype.Text{}
	if s := r.URL.Query().Get("search"); s != "" {
		search = pgtype.Text{String: s, Valid: true}
	}

	sheets, err := h.store.ListMeasurements(r.Context(), search)
	if err != nil {
		log.Printf("ERROR: list measurements: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]measurementResponse, len(sheets))
	for i, m := range sheets {
		resp[i] = toMeasurementResponse(m)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Create records a measurement sheet with the next MS sequence number.
// Retries on a sequence collision with a concurrent writer.
func (h *MeasurementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ClientName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_name is required"})
		return
	}

	unit := req.Unit
	if unit == "" {
		unit = enum.MeasurementUnitInches
	}
	if unit != enum.MeasurementUnitInches && unit != enum.MeasurementUnitCm {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid unit"})
		return
	}

	var sheet database.Measurement
	var lastErr error
	for attempt := 0; attempt < maxMeasurementRetries; attempt++ {
		next, err := h.store.NextMeasurementNumber(r.Context())
		if err != nil {
			log.Printf("ERROR: next measurement number: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}

		sheet, err = h.store.CreateMeasurement(r.Context(), database.CreateMeasurementParams{
			SequenceNumber: fmt.Sprintf("MS-%03d", next),
			ClientName:     req.ClientName,
			Phone:          req.Phone,
			Shoulder:       textOrNull(req.Shoulder),
			Chest:          textOrNull(req.Chest),
			Waist:          textOrNull(req.Waist),
			Hip:            textOrNull(req.Hip),
			SleeveLength:   textOrNull(req.SleeveLength),
			TopLength:      textOrNull(req.TopLength),
			Unit:           unit,
			Notes:          textOrNull(req.Notes),
		})
		if err == nil {
			writeJSON(w, http.StatusCreated, toMeasurementResponse(sheet))
			return
		}
		if !isUniqueViolation(err) {
			log.Printf("ERROR: create measurement: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		lastErr = err
	}

	log.Printf("ERROR: create measurement: %v", lastErr)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// Get returns one measurement sheet.
func (h *MeasurementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid measurement ID"})
		return
	}

	sheet, err := h.store.GetMeasurement(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "measurement not found"})
			return
		}
		log.Printf("ERROR: get measurement: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMeasurementResponse(sheet))
}

// Delete removes a measurement sheet. Orders keep their copy of the
// reference; the column is nulled by the foreign key.
func (h *MeasurementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid measurement ID"})
		return
	}

	if err := h.store.DeleteMeasurement(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "measurement not found"})
			return
		}
		log.Printf("ERROR: delete measurement: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
