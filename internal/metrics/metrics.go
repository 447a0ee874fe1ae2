package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "salonbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations created by booking path.",
		},
		[]string{"path"},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation status transitions by target status.",
		},
		[]string{"status"},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Rejected booking or override requests by reason.",
		},
		[]string{"reason"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	botUpdates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_duration_seconds",
			Help:      "Time spent processing one Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Telegram commands and callbacks by name and result.",
		},
		[]string{"command", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			reservationsCreated,
			reservationTransitions,
			bookingRejections,
			notifications,
			botUpdates,
			botCommands,
		)
	})
}

func ObserveHTTP(route, code string, seconds float64) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(seconds)
}

func IncReservationCreated(path string) {
	reservationsCreated.WithLabelValues(path).Inc()
}

func IncTransition(status string) {
	reservationTransitions.WithLabelValues(status).Inc()
}

func IncRejection(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

func IncNotification(channel, outcome string) {
	notifications.WithLabelValues(channel, outcome).Inc()
}

func ObserveBotUpdate(seconds float64) {
	botUpdates.Observe(seconds)
}

func IncBotCommand(command, result string) {
	botCommands.WithLabelValues(command, result).Inc()
}
