package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

const publishTimeout = 5 * time.Second

// PaymentEvent is the message body streamed on payment state changes.
type PaymentEvent struct {
	Identifier string               `json:"identifier"`
	Status     breez.PaymentState   `json:"status"`
	Error      string               `json:"error,omitempty"`
	Timestamp  int64                `json:"timestamp"`
	Payment    *breez.PaymentRecord `json:"payment,omitempty"`
}

// Producer streams payment state transitions to Kafka, one topic per
// outcome class. Implements breez.Notifier.
type Producer struct {
	writer *kafka.Writer
	topics config.TopicConfig
	log    *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer, topics: cfg.Topics, log: log}
}

// NotifyPayment publishes the transition to the topic matching its
// outcome class. Publish failures are logged, never propagated: the
// tracker must not stall on a slow broker.
func (p *Producer) NotifyPayment(identifier string, status breez.PaymentState, payment *breez.PaymentRecord, errMsg string) {
	event := PaymentEvent{
		Identifier: identifier,
		Status:     status,
		Error:      errMsg,
		Timestamp:  time.Now().Unix(),
		Payment:    payment,
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Error marshaling payment event for %s: %v", identifier, err))
		return
	}

	topic := p.topicFor(status)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(identifier),
		Value: value,
	})
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Error publishing %s event for %s: %v", status, identifier, err))
		return
	}
	p.log.LogKafka("PUBLISH", topic, fmt.Sprintf("published %s event for %s", status, identifier))
}

// topicFor routes in-flight states to the pending topic, SUCCEEDED to
// the succeeded topic, and dead ends to the failed topic.
func (p *Producer) topicFor(status breez.PaymentState) string {
	switch status {
	case breez.StateSucceeded:
		return p.topics.PaymentSucceeded
	case breez.StateFailed, breez.StateRefunded:
		return p.topics.PaymentFailed
	default:
		return p.topics.PaymentPending
	}
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
