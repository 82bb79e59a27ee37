package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"slotbook/internal/models"
)

const defaultSlotWindow = 30 * 24 * time.Hour

type nameRequest struct {
	Name string `json:"name"`
}

type availabilityRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type reserveRequest struct {
	SlotID int64 `json:"slot_id"`
}

type confirmRequest struct {
	ReservationID int64 `json:"reservation_id"`
}

type clientRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var body nameRequest
	if !decodeBody(w, r, &body) {
		return
	}
	p, err := s.svc.Providers.CreateProvider(r.Context(), body.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *HTTPServer) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.svc.Providers.ListProviders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *HTTPServer) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.svc.Providers.GetProvider(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleRenameProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body nameRequest
	if !decodeBody(w, r, &body) {
		return
	}
	p, err := s.svc.Providers.RenameProvider(r.Context(), id, body.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Providers.DeleteProvider(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSubmitAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body availabilityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.StartTime.IsZero() || body.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "start_time and end_time are required")
		return
	}

	res, err := s.svc.Scheduler.SubmitAvailability(r.Context(), id, body.StartTime, body.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"availability_id": res.Availability.ID,
		"slots":           res.Slots,
	})
}

func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	slots, err := s.svc.Scheduler.ListAvailableSlots(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []*models.Slot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_slots": slots})
}

func (s *HTTPServer) handleProviderSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}
	slots, err := s.svc.Providers.ListProviderSlots(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []*models.SlotDetail{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleExportSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := s.queryRange(w, r)
	if !ok {
		return
	}

	provider, err := s.svc.Providers.GetProvider(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	slots, err := s.svc.Providers.ListProviderSlots(r.Context(), id, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	path, err := s.svc.Exporter.SaveProviderSlots(provider, from, to, slots)
	if err != nil {
		s.logger.Error().Err(err).Int64("provider_id", id).Msg("Slot export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var body clientRequest
	if !decodeBody(w, r, &body) {
		return
	}
	c := &models.Client{Name: body.Name, Email: body.Email, PhoneNumber: body.PhoneNumber}
	if err := s.svc.Clients.CreateClient(r.Context(), c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *HTTPServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.svc.Clients.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (s *HTTPServer) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.svc.Clients.GetClient(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body clientRequest
	if !decodeBody(w, r, &body) {
		return
	}
	c, err := s.svc.Clients.UpdateClient(r.Context(), id, &models.Client{
		Name:        body.Name,
		Email:       body.Email,
		PhoneNumber: body.PhoneNumber,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Clients.DeleteClient(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleClientReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reservations, err := s.svc.Clients.ListClientReservations(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if reservations == nil {
		reservations = []*models.Reservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": reservations})
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body reserveRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.SlotID <= 0 {
		writeError(w, http.StatusBadRequest, "slot_id is required")
		return
	}

	hold, err := s.svc.Scheduler.ReserveSlot(r.Context(), clientID, body.SlotID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	clientID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body confirmRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ReservationID <= 0 {
		writeError(w, http.StatusBadRequest, "reservation_id is required")
		return
	}

	res, err := s.svc.Scheduler.ConfirmReservation(r.Context(), clientID, body.ReservationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "reservation confirmed",
		"confirmed_at": res.ConfirmedAt,
		"reservation":  res,
	})
}

func (s *HTTPServer) handleExpire(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Scheduler.ExpireStaleReservations(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// queryRange parses optional RFC 3339 from/to parameters. A missing from is
// now; a missing to is 30 days after from.
func (s *HTTPServer) queryRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from := s.now()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from; expected RFC 3339")
			return time.Time{}, time.Time{}, false
		}
		from = t.UTC()
	}
	to := from.Add(defaultSlotWindow)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to; expected RFC 3339")
			return time.Time{}, time.Time{}, false
		}
		to = t.UTC()
	}
	return from, to, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
