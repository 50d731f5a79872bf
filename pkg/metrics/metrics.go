package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	netvoiceTracker = "netvoice_tracker"

	// Channel metrics
	channelReconnectsTotal = "channel_reconnects_total"
	channelConnected       = "channel_connected"

	// Reconciler metrics
	messagesDrainedTotal = "messages_drained_total"
	pollRefreshesTotal   = "poll_refreshes_total"

	// Action metrics
	actionFailuresTotal = "action_failures_total"

	// Labels
	messageTypeLabel = "type"
	actionLabel      = "action"
)

/**
* Metrics definition
**/
var channelReconnectsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: netvoiceTracker,
		Name:      channelReconnectsTotal,
		Help:      "number of times the push channel reconnected",
	},
)

var channelConnectedMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: netvoiceTracker,
		Name:      channelConnected,
		Help:      "1 while the push channel is connected, 0 otherwise",
	},
)

var messagesDrainedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: netvoiceTracker,
		Name:      messagesDrainedTotal,
		Help:      "number of push messages drained by the reconciler",
	},
	[]string{messageTypeLabel},
)

var pollRefreshesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: netvoiceTracker,
		Name:      pollRefreshesTotal,
		Help:      "number of authoritative poll refreshes performed",
	},
)

var actionFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: netvoiceTracker,
		Name:      actionFailuresTotal,
		Help:      "number of failed user actions",
	},
	[]string{actionLabel},
)

func IncreaseChannelReconnectsMetric() {
	channelReconnectsTotalMetric.Inc()
}

func SetChannelConnectedMetric(connected bool) {
	if connected {
		channelConnectedMetric.Set(1)
		return
	}
	channelConnectedMetric.Set(0)
}

func IncreaseMessagesDrainedMetric(messageType string) {
	messagesDrainedTotalMetric.With(prometheus.Labels{messageTypeLabel: messageType}).Inc()
}

func IncreasePollRefreshesMetric() {
	pollRefreshesTotalMetric.Inc()
}

func IncreaseActionFailuresMetric(action string) {
	actionFailuresTotalMetric.With(prometheus.Labels{actionLabel: action}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(channelReconnectsTotalMetric)
	prometheus.MustRegister(channelConnectedMetric)
	prometheus.MustRegister(messagesDrainedTotalMetric)
	prometheus.MustRegister(pollRefreshesTotalMetric)
	prometheus.MustRegister(actionFailuresTotalMetric)
}
