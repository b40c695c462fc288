package httpapi

import (
	"net/http"
	"time"

	"letterbox/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics observes the sender, scanner and inbox and exposes the counters on
// its own registry, so tests can build as many as they like.
type Metrics struct {
	registry         *prometheus.Registry
	startTime        time.Time
	lettersSent      prometheus.Counter
	sendFailures     *prometheus.CounterVec
	scans            prometheus.Counter
	lettersScanned   prometheus.Counter
	lastScannedBlock prometheus.Gauge
	latestBlock      prometheus.Gauge
	inboxStored      prometheus.Counter
	inboxCursor      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		lettersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "letterbox",
			Name:      "letters_sent_total",
			Help:      "Letters whose transaction reached success status.",
		}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "letterbox",
			Name:      "send_failures_total",
			Help:      "Failed send attempts by error kind.",
		}, []string{"kind"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "letterbox",
			Name:      "scans_total",
			Help:      "Completed letter scans.",
		}),
		lettersScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "letterbox",
			Name:      "letters_scanned_total",
			Help:      "Letters returned by scans.",
		}),
		lastScannedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "letterbox",
			Name:      "last_scanned_block",
			Help:      "Upper bound of the most recent scan window.",
		}),
		latestBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "letterbox",
			Name:      "latest_block",
			Help:      "Latest block reported by the node.",
		}),
		inboxStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "letterbox",
			Name:      "inbox_letters_stored_total",
			Help:      "Letters newly written to the inbox store.",
		}),
		inboxCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "letterbox",
			Name:      "inbox_cursor_block",
			Help:      "Last block the inbox has fully synced.",
		}),
	}
	m.registry.MustRegister(
		m.lettersSent,
		m.sendFailures,
		m.scans,
		m.lettersScanned,
		m.lastScannedBlock,
		m.latestBlock,
		m.inboxStored,
		m.inboxCursor,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "letterbox",
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started.",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnLetterSent(domain.TransactionReceipt) {
	m.lettersSent.Inc()
}

func (m *Metrics) OnSendFailed(kind domain.Kind) {
	label := string(kind)
	if label == "" {
		label = "Unknown"
	}
	m.sendFailures.WithLabelValues(label).Inc()
}

func (m *Metrics) OnLatestBlock(block uint64) {
	m.latestBlock.Set(float64(block))
}

func (m *Metrics) OnScanCompleted(fromBlock, toBlock uint64, count int) {
	m.scans.Inc()
	m.lettersScanned.Add(float64(count))
	m.lastScannedBlock.Set(float64(toBlock))
}

func (m *Metrics) OnInboxSynced(fromBlock, toBlock uint64, stored int) {
	m.inboxStored.Add(float64(stored))
	m.inboxCursor.Set(float64(toBlock))
}
