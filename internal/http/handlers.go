package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/cinema-seat-booking/internal/domain"
	"github.com/robertarktes/cinema-seat-booking/internal/idempotency"
	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

// EventPublisher receives every confirmed booking. It must not block.
type EventPublisher interface {
	Enqueue(b domain.Booking) bool
}

type Handlers struct {
	catalog *domain.Catalog
	idemp   *idempotency.Idempotency
	events  EventPublisher
}

func NewHandlers(catalog *domain.Catalog, idemp *idempotency.Idempotency, events EventPublisher) *Handlers {
	return &Handlers{
		catalog: catalog,
		idemp:   idemp,
		events:  events,
	}
}

// marshalResult encodes /seats outcomes; tests replace it to force failures.
var marshalResult = json.Marshal

type bookingResponse struct {
	BookingID string `json:"booking_id"`
	Theater   string `json:"theater"`
	Room      string `json:"room"`
	Movie     string `json:"movie"`
	Seats     []int  `json:"seats"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handlers) Movies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.AllPlayingMovies())
}

func (h *Handlers) Find(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFind(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.TheatersShowingMovie(req.Movie))
}

func (h *Handlers) Bookings(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBookings(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalog.Bookings(req.Theater, req.Movie))
}

func (h *Handlers) Seats(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		LoggerFrom(r.Context()).WithError(err).Warn("idempotency lookup failed")
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	req, err := decodeSeats(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	booking, err := h.catalog.BookSeats(req.Theater, req.Movie, req.Seats)
	observability.BookingDuration.Observe(time.Since(start).Seconds())

	var (
		status int
		body   interface{}
	)
	switch {
	case err == nil:
		observability.BookingsTotal.WithLabelValues("booked").Inc()
		h.events.Enqueue(booking)
		LoggerFrom(r.Context()).WithField("booking_id", booking.ID).WithField("room", booking.Room).Info("seats booked")
		status, body = http.StatusOK, bookingResponse{
			BookingID: booking.ID.String(),
			Theater:   booking.Theater,
			Room:      booking.Room,
			Movie:     booking.Movie,
			Seats:     booking.Seats,
		}
	case errors.Is(err, domain.ErrNoSuchShowing):
		observability.BookingsTotal.WithLabelValues("no_such_showing").Inc()
		status, body = http.StatusNotFound, errorResponse{Error: "no such showing"}
	case errors.Is(err, domain.ErrSeatsUnavailable):
		observability.BookingsTotal.WithLabelValues("seats_unavailable").Inc()
		status, body = http.StatusConflict, errorResponse{Error: "No available seats.", Detail: err.Error()}
	default:
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	data, err := marshalResult(body)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errors.Wrap(err, "encoding booking response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data}); err != nil {
		LoggerFrom(r.Context()).WithError(err).Warn("idempotency store failed")
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		LoggerFrom(r.Context()).WithError(err).Error("request failed")
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
