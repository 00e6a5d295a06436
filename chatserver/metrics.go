package chatserver

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the server core updates as it
// runs. This is pure ambient instrumentation — no admission or routing
// decision depends on any of these values.
type Metrics struct {
	clientsRegistered prometheus.Counter
	workproofRejected prometheus.Counter
	sequenceRejected  prometheus.Counter
	mailboxFull       prometheus.Counter
	announcesHandled  prometheus.Counter
	transfersEmitted  prometheus.Counter
	outgoingDropped   prometheus.Counter
	mailboxOccupancy  prometheus.Histogram
}

// NewMetrics builds the collector set and registers it with reg. Passing
// a nil registry builds unregistered (but still usable) collectors, for
// tests and for embedding into a larger application's own registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		clientsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_clients_registered_total",
			Help: "Local clients registered on this server since start.",
		}),
		workproofRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_workproof_rejected_total",
			Help: "Sequenced requests rejected for failing proof-of-work admission.",
		}),
		sequenceRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_sequence_rejected_total",
			Help: "Sequenced requests rejected for a non-increasing seqid.",
		}),
		mailboxFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_mailbox_full_total",
			Help: "Message deliveries refused because the destination mailbox was at capacity.",
		}),
		announcesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_announces_handled_total",
			Help: "Server-to-server Announce frames processed.",
		}),
		transfersEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_transfers_emitted_total",
			Help: "ClientReply::Transfer replies emitted for remote destinations.",
		}),
		outgoingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatfed_outgoing_dropped_total",
			Help: "Forwarded messages dropped because no route to the destination server was known.",
		}),
		mailboxOccupancy: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatfed_mailbox_occupancy",
			Help:    "Mailbox length observed at delivery time.",
			Buckets: prometheus.LinearBuckets(0, 16, 17),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.clientsRegistered, m.workproofRejected, m.sequenceRejected,
			m.mailboxFull, m.announcesHandled, m.transfersEmitted,
			m.outgoingDropped, m.mailboxOccupancy,
		)
	}
	return m
}
