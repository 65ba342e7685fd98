package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters, exposed on /metrics next to the HTTP RED metrics.
var (
	interestToggles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_interest_toggles_total",
			Help: "Interest toggles by outcome (added, removed, conflict).",
		},
		[]string{"result"},
	)
	notificationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_notifications_created_total",
		Help: "Notifications appended to the store.",
	})
	messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_messages_sent_total",
		Help: "Direct messages created.",
	})
	messagesMarkedRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_messages_marked_read_total",
		Help: "Messages flipped to read by mark_read.",
	})
)

func init() {
	prometheus.MustRegister(interestToggles, notificationsCreated, messagesSent, messagesMarkedRead)
}
