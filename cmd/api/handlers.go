package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/WessleyAI/wessley-trips/engine/domain"
	"github.com/WessleyAI/wessley-trips/engine/fleet"
	"github.com/WessleyAI/wessley-trips/engine/trip"
	"github.com/WessleyAI/wessley-trips/pkg/mid"
)

const maxBodyBytes = 1 << 20

type storeProbe interface {
	Ping(ctx context.Context) error
	NodeCounts(ctx context.Context) (map[string]int64, error)
}

type server struct {
	fleet  *fleet.Service
	trips  *trip.Manager
	store  storeProbe
	logger *slog.Logger
}

type startTripRequest struct {
	LicensePlate string `json:"licensePlate"`
}

type positionRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type healthResponse struct {
	Status string           `json:"status"`
	Store  string           `json:"store"`
	Counts map[string]int64 `json:"counts,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health: store ping failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Store: "down"})
		return
	}
	resp := healthResponse{Status: "ok", Store: "up"}
	if counts, err := s.store.NodeCounts(ctx); err == nil {
		resp.Counts = counts
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var in domain.ClientInput
	if !s.decode(w, r, &in) {
		return
	}
	c, err := s.fleet.RegisterClient(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *server) handleFindClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clients, err := s.fleet.FindClients(r.Context(), q.Get("clientId"), q.Get("email"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	c, err := s.fleet.GetClient(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) handleRegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var in domain.VehicleInput
	if !s.decode(w, r, &in) {
		return
	}
	v, err := s.fleet.RegisterVehicle(r.Context(), chi.URLParam(r, "clientId"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	vs, err := s.fleet.ListVehicles(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := s.fleet.GetVehicle(r.Context(), chi.URLParam(r, "licensePlate"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleListTrips(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	ok, err := s.fleet.ClientExists(r.Context(), clientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeError(w, r, domain.ErrClientNotFound)
		return
	}
	ts, err := s.trips.ListTrips(r.Context(), clientID, r.URL.Query().Get("vehicleId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *server) handleStartTrip(w http.ResponseWriter, r *http.Request) {
	var req startTripRequest
	if !s.decode(w, r, &req) {
		return
	}
	start, err := s.trips.StartTrip(r.Context(), req.LicensePlate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, start)
}

func (s *server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.GetTrip(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleRecordPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Latitude == nil {
		s.writeError(w, r, domain.NewValidationError("latitude", "", domain.ErrRequired))
		return
	}
	if req.Longitude == nil {
		s.writeError(w, r, domain.NewValidationError("longitude", "", domain.ErrRequired))
		return
	}
	p, err := s.trips.RecordPosition(r.Context(), chi.URLParam(r, "tripId"), *req.Latitude, *req.Longitude)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleTripPositions(w http.ResponseWriter, r *http.Request) {
	ps, err := s.trips.TripPositions(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *server) handleStopTrip(w http.ResponseWriter, r *http.Request) {
	t, err := s.trips.StopTrip(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.fleet.Reset(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		mid.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "kind", domain.KindOf(err), "err", err)
	}
	mid.WriteJSONError(w, status, msg)
}

// statusFor maps an engine error to its HTTP status and client-facing message.
// Details of server-side failures stay in the log.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	case errors.Is(err, domain.ErrAggregateUpdateFailed):
		return http.StatusInternalServerError, "aggregate update failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
