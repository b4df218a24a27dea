package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/stadium-tickets/internal/domain"
	"github.com/robertarktes/stadium-tickets/internal/idempotency"
	"github.com/robertarktes/stadium-tickets/internal/observability"
	"github.com/robertarktes/stadium-tickets/internal/reservation"
)

type Handlers struct {
	svc    *reservation.Service
	idemp  *idempotency.Idempotency
	logger observability.Logger
}

func NewHandlers(svc *reservation.Service, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, idemp: idemp, logger: logger}
}

func (h *Handlers) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.ListMatches(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]interface{}{
			"match_id":    m.ID,
			"match_date":  m.MatchDate.Format(time.RFC3339),
			"stadium":     m.Stadium,
			"total_seats": m.TotalSeats,
			"home_team":   m.HomeTeam,
			"away_team":   m.AwayTeam,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListSeats(w http.ResponseWriter, r *http.Request) {
	matchID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	seats, err := h.svc.ListSeats(r.Context(), matchID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(seats))
	for _, s := range seats {
		out = append(out, map[string]interface{}{
			"seat_id":     s.ID,
			"block":       s.Block,
			"row_no":      s.RowNo,
			"seat_number": s.SeatNumber,
			"grade":       s.Grade,
			"price":       s.Price,
			"is_reserved": s.Reserved,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	if existing, err := h.idemp.Get(r.Context(), key); err == nil && existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		UserID  uuid.UUID `json:"user_id"`
		MatchID uuid.UUID `json:"match_id"`
		SeatID  uuid.UUID `json:"seat_id"`
		Amount  int64     `json:"amount"`
		Method  string    `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	in := domain.CreateReservationInput{
		UserID:  req.UserID,
		MatchID: req.MatchID,
		SeatID:  req.SeatID,
		Amount:  req.Amount,
		Method:  req.Method,
	}
	meta := domain.CallerMeta{IP: r.RemoteAddr, UserAgent: r.UserAgent()}

	res, err := h.svc.CreateReservation(r.Context(), in, meta)
	if errors.Is(err, domain.ErrSerializationFailure) {
		// One boundary retry; the core never retries internally.
		RequestLogger(r.Context(), h.logger).Warn("retrying claim after serialization failure")
		res, err = h.svc.CreateReservation(r.Context(), in, meta)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	data, _ := json.Marshal(map[string]interface{}{
		"reservation_id": res.ID,
		"status":         res.Status,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	resID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid reservation id", http.StatusBadRequest)
		return
	}

	res, err := h.svc.CancelReservation(r.Context(), resID)
	if errors.Is(err, domain.ErrSerializationFailure) {
		RequestLogger(r.Context(), h.logger).Warn("retrying cancel after serialization failure")
		res, err = h.svc.CancelReservation(r.Context(), resID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservation_id": res.ID,
		"status":         res.Status,
	})
}

func (h *Handlers) MyReservations(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	list, err := h.svc.ListUserReservations(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(list))
	for _, ur := range list {
		item := map[string]interface{}{
			"res_id":   ur.Reservation.ID,
			"status":   ur.Reservation.Status,
			"res_date": ur.Reservation.ResDate.Format(time.RFC3339),
			"match": map[string]interface{}{
				"match_id":   ur.Match.ID,
				"match_date": ur.Match.MatchDate.Format(time.RFC3339),
				"stadium":    ur.Match.Stadium,
				"home_team":  ur.Match.HomeTeam,
				"away_team":  ur.Match.AwayTeam,
			},
			"seat": map[string]interface{}{
				"seat_id":     ur.Seat.ID,
				"block":       ur.Seat.Block,
				"row_no":      ur.Seat.RowNo,
				"seat_number": ur.Seat.SeatNumber,
				"grade":       ur.Seat.Grade,
				"price":       ur.Seat.Price,
			},
		}
		if ur.Payment != nil {
			item["payment"] = map[string]interface{}{
				"amount":   ur.Payment.Amount,
				"method":   ur.Payment.Method,
				"pay_date": ur.Payment.PayDate.Format(time.RFC3339),
			}
		} else {
			item["payment"] = nil
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, created, err := h.svc.LoginOrSignup(r.Context(), req.Name, req.Email, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"phone":   user.Phone,
		"is_new":  created,
	})
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.svc.AdminLogin(r.Context(), req.Email)
	if errors.Is(err, domain.ErrNotFound) {
		http.Error(w, "admin account not found", http.StatusUnauthorized)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"role":    user.Role,
	})
}

func (h *Handlers) MatchStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.MatchStatistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(stats))
	for _, st := range stats {
		out = append(out, map[string]interface{}{
			"match_id":          st.MatchID,
			"match_date":        st.MatchDate.Format(time.RFC3339),
			"stadium":           st.Stadium,
			"total_seats":       st.TotalSeats,
			"seat_count":        st.SeatCount,
			"reserved_seats":    st.ReservedSeats,
			"occupancy_rate":    st.OccupancyRate,
			"total_sales":       st.TotalSales,
			"reservation_count": st.ReservationCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) AbuseCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.svc.FindCancelAbuseCandidates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]interface{}{
			"user_id":      c.UserID,
			"res_id":       c.ReservationID,
			"cancel_count": c.CancelCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CancelHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListCancelHistory(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"cancel_id":   e.ID,
			"res_id":      e.ReservationID,
			"user_id":     e.UserID,
			"cancel_date": e.CancelDate.Format(time.RFC3339),
			"reason":      e.Reason,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates the domain error taxonomy into status codes.
// Serialization failures reaching here already used their one retry.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSeatConflict),
		errors.Is(err, domain.ErrMatchMismatch),
		errors.Is(err, domain.ErrQuotaExceeded),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrCancelLimitExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
