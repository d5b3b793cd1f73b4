package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_bookings_total",
			Help: "Booking attempts by outcome",
		},
		[]string{"outcome"},
	)

	BookingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cinema_booking_seconds",
			Help:    "Time spent resolving and reserving a booking",
			Buckets: []float64{.000001, .00001, .0001, .001, .01},
		},
	)

	FramingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_framing_errors_total",
			Help: "Connections failed while framing a request",
		},
		[]string{"kind"},
	)

	OpenConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinema_open_connections",
			Help: "Connections currently held by the server",
		},
	)

	EventPublishRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_event_publish_retries_total",
			Help: "Total booking event publish retries",
		},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cinema_events_dropped_total",
			Help: "Booking events dropped because the outbox was full or sinks kept failing",
		},
	)
)

// InitMetrics registers the collectors with the default registry. It must be
// called once by the binary; tests leave the collectors unregistered.
func InitMetrics() {
	prometheus.MustRegister(RequestsTotal, BookingsTotal, BookingDuration, FramingErrors,
		OpenConnections, EventPublishRetries, EventsDropped)
}
