package repository

import (
	"context"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
	pkgkafka "SignalGate/pkg/kafka"
)

// KafkaPublisher writes evaluations and alerts keyed by ticker, so a consumer
// sees each ticker's results in cycle order.
type KafkaPublisher struct {
	producer         *pkgkafka.Producer
	evaluationsTopic string
	alertsTopic      string
	metrics          domrepo.Metrics
}

func NewKafkaPublisher(producer *pkgkafka.Producer, evaluationsTopic, alertsTopic string, metrics domrepo.Metrics) *KafkaPublisher {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaPublisher{producer: producer, evaluationsTopic: evaluationsTopic, alertsTopic: alertsTopic, metrics: metrics}
}

func (p *KafkaPublisher) PublishEvaluation(ctx context.Context, e models.TickerEvaluation) error {
	if err := p.producer.Publish(ctx, p.evaluationsTopic, []byte(e.Ticker), e); err != nil {
		return err
	}
	p.metrics.RecordMessageSent("kafka", p.evaluationsTopic)
	return nil
}

func (p *KafkaPublisher) PublishAlert(ctx context.Context, a models.AlertRecord) error {
	if err := p.producer.Publish(ctx, p.alertsTopic, []byte(a.Ticker), a); err != nil {
		return err
	}
	p.metrics.RecordMessageSent("kafka", p.alertsTopic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.ResultPublisher = (*KafkaPublisher)(nil)
