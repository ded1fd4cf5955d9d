package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	cycleFailures  prometheus.Counter
	tickersTotal   *prometheus.CounterVec
	tickerDuration prometheus.Histogram
	verdictsTotal  *prometheus.CounterVec
	tiersTotal     *prometheus.CounterVec
	gateTotal      *prometheus.CounterVec
	ledgerRetries  *prometheus.CounterVec
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	qualityGauge   *prometheus.GaugeVec
}

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_cycles_total",
			Help: "Evaluation cycles run, by trigger",
		}, []string{"trigger"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalgate_cycle_duration_seconds",
			Help:    "Wall time of a full evaluation cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		cycleFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "signalgate_cycle_ticker_failures_total",
			Help: "Per-ticker failure entries reported by cycles",
		}),
		tickersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_ticker_evaluations_total",
			Help: "Ticker evaluations by outcome",
		}, []string{"outcome"}),
		tickerDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalgate_ticker_evaluation_seconds",
			Help:    "Duration of one ticker pipeline including persistence",
			Buckets: prometheus.DefBuckets,
		}),
		verdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_fusion_verdicts_total",
			Help: "Fused verdicts produced",
		}, []string{"verdict"}),
		tiersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_quality_tiers_total",
			Help: "Quality tiers assigned",
		}, []string{"tier"}),
		gateTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_alert_gate_decisions_total",
			Help: "Alert gate terminal decisions by alert type and state",
		}, []string{"alert_type", "state"}),
		ledgerRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_ledger_retries_total",
			Help: "Retries issued against the dedup ledger",
		}, []string{"backend"}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_messages_sent_total",
			Help: "Messages handed to an output backend",
		}, []string{"backend", "topic"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalgate_errors_total",
			Help: "Errors encountered, by kind",
		}, []string{"kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalgate_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		qualityGauge: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalgate_last_quality_score",
			Help: "Most recent composite quality score per ticker",
		}, []string{"ticker"}),
	}
}

func (r *Recorder) RecordCycle(trigger string, failures int, d time.Duration) {
	r.cyclesTotal.WithLabelValues(trigger).Inc()
	r.cycleDuration.Observe(d.Seconds())
	r.cycleFailures.Add(float64(failures))
}

func (r *Recorder) RecordTickerEvaluation(outcome string, d time.Duration) {
	r.tickersTotal.WithLabelValues(outcome).Inc()
	r.tickerDuration.Observe(d.Seconds())
}

func (r *Recorder) RecordVerdict(verdict string) {
	r.verdictsTotal.WithLabelValues(verdict).Inc()
}

func (r *Recorder) RecordQuality(ticker, tier string, score float64) {
	r.tiersTotal.WithLabelValues(tier).Inc()
	r.qualityGauge.WithLabelValues(ticker).Set(score)
}

func (r *Recorder) RecordGateDecision(alertType, state string) {
	r.gateTotal.WithLabelValues(alertType, state).Inc()
}

func (r *Recorder) RecordLedgerRetry(backend string) {
	r.ledgerRetries.WithLabelValues(backend).Inc()
}

func (r *Recorder) RecordMessageSent(backend, topic string) {
	r.messagesSent.WithLabelValues(backend, topic).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
