package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"olympspa/internal/domain"
	"olympspa/internal/export"
	"olympspa/internal/interval"
	"olympspa/internal/models"
)

var errBadRequest = errors.New("bad request")

// guestCount accepts 2 and "2"; web forms send either.
type guestCount int

func (g *guestCount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*g = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("guests must be an integer")
	}
	*g = guestCount(n)
	return nil
}

type bookingRequest struct {
	From   string     `json:"from"`
	To     string     `json:"to"`
	Guests guestCount `json:"guests"`
}

type checkoutRequest struct {
	CheckIn  string     `json:"checkin"`
	CheckOut string     `json:"checkout"`
	Guests   guestCount `json:"guests"`
}

type reservationView struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Guests    int    `json:"guests"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func newReservationView(r *models.Reservation) reservationView {
	return reservationView{
		ID:        r.ID,
		From:      interval.Format(r.From),
		To:        interval.Format(r.To),
		Guests:    r.Guests,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type conflictView struct {
	ID         int64  `json:"id"`
	SessionID  string `json:"session_id"`
	EventID    string `json:"event_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Guests     int    `json:"guests"`
	Reason     string `json:"reason"`
	DetectedAt string `json:"detected_at"`
}

// decodeJSON reads a bounded JSON body into dst.
func (s *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

// parseRange validates the raw request fields before any store access.
func parseRange(from, to string, guests guestCount) (interval.Range, int, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" || guests == 0 {
		return interval.Range{}, 0, fmt.Errorf("%w: from, to and guests are required", errBadRequest)
	}
	rng, err := interval.Parse(from, to)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidRange) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return interval.Range{}, 0, err
	}
	if guests < 1 {
		return interval.Range{}, 0, domain.ErrInvalidGuests
	}
	return rng, int(guests), nil
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.checkBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
	}
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	reservations, err := s.services.Availability.ListReservations(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]reservationView, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, newReservationView(res))
	}
	writeJSON(w, http.StatusOK, out)
}

// checkBooking answers whether a range is free. It never writes; a
// reservation only exists after a confirmed payment.
func (s *HTTPServer) checkBooking(w http.ResponseWriter, r *http.Request) {
	var body bookingRequest
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	rng, _, err := parseRange(body.From, body.To, body.Guests)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if err := s.services.Availability.CheckAvailability(r.Context(), rng); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": true})
}

func (s *HTTPServer) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
		return
	}

	var body checkoutRequest
	if err := s.decodeJSON(w, r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	rng, guests, err := parseRange(body.CheckIn, body.CheckOut, body.Guests)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	handle, err := s.services.Checkout.CreateCheckout(r.Context(), rng, guests)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": handle.SessionID, "url": handle.URL})
}

// handleWebhook acknowledges every terminal outcome with 200 so the gateway
// stops redelivering. Only store failures answer 500.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "error reading request body")
		return
	}

	result, err := s.services.Reconciler.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
	case result != nil && (errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrRejectedInvalid)):
	default:
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"outcome":   result.Outcome,
		"duplicate": result.Duplicate,
	})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.services.Store != nil {
		if err := s.services.Store.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, codeUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
		return
	}

	conflicts, err := s.services.Availability.ListConflicts(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]conflictView, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictView{
			ID:         c.ID,
			SessionID:  c.SessionID,
			EventID:    c.EventID,
			From:       interval.Format(c.From),
			To:         interval.Format(c.To),
			Guests:     c.Guests,
			Reason:     c.Reason,
			DetectedAt: c.DetectedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": out})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
		return
	}

	ctx := r.Context()
	reservations, err := s.services.Availability.ListReservations(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	conflicts, err := s.services.Availability.ListConflicts(ctx)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, reservations, conflicts); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="reservas_%s.xlsx"`, time.Now().UTC().Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, codeMethod, "method not allowed")
		return
	}
	if s.services.Resync == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "spreadsheet sync is not configured")
		return
	}
	if err := s.services.Resync.EnqueueResync(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}
