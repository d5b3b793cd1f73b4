package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/cinema-seat-booking/internal/observability"
)

// Endpoint names one operation of the booking API.
type Endpoint int

const (
	EndpointMovies Endpoint = iota
	EndpointFind
	EndpointBookings
	EndpointSeats
	EndpointHealth
)

func (e Endpoint) String() string {
	switch e {
	case EndpointMovies:
		return "movies"
	case EndpointFind:
		return "find"
	case EndpointBookings:
		return "bookings"
	case EndpointSeats:
		return "seats"
	case EndpointHealth:
		return "health"
	}
	return "unknown"
}

type Route struct {
	Endpoint Endpoint
	Method   string
	Path     string
}

// Routes is the complete booking API.
var Routes = []Route{
	{EndpointMovies, http.MethodGet, "/movies"},
	{EndpointFind, http.MethodPost, "/find"},
	{EndpointBookings, http.MethodPost, "/bookings"},
	{EndpointSeats, http.MethodPost, "/seats"},
	{EndpointHealth, http.MethodGet, "/healthz"},
}

func (h *Handlers) handlerFor(e Endpoint) http.HandlerFunc {
	switch e {
	case EndpointMovies:
		return h.Movies
	case EndpointFind:
		return h.Find
	case EndpointBookings:
		return h.Bookings
	case EndpointSeats:
		return h.Seats
	case EndpointHealth:
		return h.Healthz
	}
	return nil
}

func SetupRouter(h *Handlers, logger observability.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	for _, rt := range Routes {
		r.Method(rt.Method, rt.Path, h.handlerFor(rt.Endpoint))
	}

	r.NotFound(emptyStatus(http.StatusNotFound))
	r.MethodNotAllowed(emptyStatus(http.StatusMethodNotAllowed))

	return r
}

// SetupAdminRouter serves operational endpoints on a separate listener.
func SetupAdminRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

func emptyStatus(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}
