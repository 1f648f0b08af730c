package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_reservations_total",
			Help: "Reservation attempts by source and outcome",
		},
		[]string{"source", "result"},
	)

	TicketsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_units_reserved_total",
			Help: "Ticket units taken from stock",
		},
	)

	CheckoutOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_checkout_operations_total",
			Help: "Checkout begin/complete/cancel calls by outcome",
		},
		[]string{"operation", "result"},
	)

	OrganizerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_organizer_requests_total",
			Help: "Organizer request transitions",
		},
		[]string{"action"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SSESubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketing_availability_subscribers",
			Help: "Open availability streams",
		},
	)
)

// Result maps an error onto the outcome label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
