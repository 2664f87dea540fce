package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breez/payments-rest-api/internal/breez"
	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

func TestTopicRouting(t *testing.T) {
	producer := NewProducer(config.KafkaConfig{
		Brokers: []string{"localhost:9092"},
		Topics: config.TopicConfig{
			PaymentPending:   "payments.pending",
			PaymentSucceeded: "payments.succeeded",
			PaymentFailed:    "payments.failed",
		},
	}, logger.NewLogger())

	assert.Equal(t, "payments.pending", producer.topicFor(breez.StatePending))
	assert.Equal(t, "payments.pending", producer.topicFor(breez.StateWaitingConfirmation))
	assert.Equal(t, "payments.pending", producer.topicFor(breez.StateWaitingFeeAcceptance))
	assert.Equal(t, "payments.succeeded", producer.topicFor(breez.StateSucceeded))
	assert.Equal(t, "payments.failed", producer.topicFor(breez.StateFailed))
	assert.Equal(t, "payments.failed", producer.topicFor(breez.StateRefunded))
}
