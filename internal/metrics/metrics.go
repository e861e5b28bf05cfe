package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "olympspa"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout session attempts by result.",
		},
		[]string{"result"},
	)

	confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Payment confirmations by outcome.",
		},
		[]string{"outcome"},
	)

	paidConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_conflicts_total",
			Help:      "Paid confirmations rejected because the range was already taken. Each one needs a manual refund.",
		},
	)

	sheetsTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_tasks_total",
			Help:      "Sheets mirror tasks by final status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, checkouts, confirmations, paidConflicts, sheetsTasks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncCheckout(result string) {
	checkouts.WithLabelValues(result).Inc()
}

func IncConfirmation(outcome string) {
	confirmations.WithLabelValues(outcome).Inc()
}

func IncPaidConflict() {
	paidConflicts.Inc()
}

func IncSheetsTask(status string) {
	sheetsTasks.WithLabelValues(status).Inc()
}
