package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	pkgkafka "SignalGate/pkg/kafka"
	"SignalGate/pkg/util"

	"github.com/go-playground/validator/v10"
)

// KafkaReadingsHandler buffers TickerReadings messages for the next cycle.
type KafkaReadingsHandler struct {
	topic    string
	source   domrepo.ReadingSource
	metrics  domrepo.Metrics
	validate *validator.Validate
}

func NewKafkaReadingsHandler(topic string, source domrepo.ReadingSource, metrics domrepo.Metrics) *KafkaReadingsHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaReadingsHandler{topic: topic, source: source, metrics: metrics, validate: validator.New()}
}

func (h *KafkaReadingsHandler) Topic() string { return h.topic }

// Handle stores one JSON TickerReadings. Undecodable or invalid payloads are
// permanent failures and go to the DLQ without retry.
func (h *KafkaReadingsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.TickerReadings
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode readings: %w", err))
	}
	r.Ticker = util.NormalizeTicker(r.Ticker)
	if err := h.validate.Struct(r); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid readings: %w", err))
	}
	if r.AsOf.IsZero() {
		r.AsOf = time.Now().UTC()
	} else {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(r.AsOf).Seconds())
	}

	start := time.Now()
	err := h.source.Put(ctx, r)
	h.metrics.RecordLatency("readings_put_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaReadingsHandler)(nil)
