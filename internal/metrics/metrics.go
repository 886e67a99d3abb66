// Package metrics exposes the core's prometheus collectors. Everything is
// registered on the default registry and served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_messages_appended_total",
		Help: "Messages appended to conversations.",
	})

	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_conversations_created_total",
		Help: "Conversations created by first contact.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_events_published_total",
		Help: "Change events published through the broker.",
	}, []string{"kind"})

	EventsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_events_coalesced_total",
		Help: "Events coalesced because a subscriber fell behind.",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_active_subscriptions",
		Help: "Live gateway subscriptions.",
	})

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_ws_clients",
		Help: "Connected websocket clients.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
