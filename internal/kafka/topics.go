package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/breez/payments-rest-api/internal/config"
	"github.com/breez/payments-rest-api/internal/logger"
)

// EnsureTopicsExist creates the payment topics if they are missing.
// Called once at startup before the producer is wired in.
func EnsureTopicsExist(cfg config.KafkaConfig, log *logger.Logger) error {
	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("resolve controller: %w", err)
	}
	controllerConn, err := kafka.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer controllerConn.Close()

	topics := []string{
		cfg.Topics.PaymentPending,
		cfg.Topics.PaymentSucceeded,
		cfg.Topics.PaymentFailed,
	}
	for _, topic := range topics {
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Debug("KAFKA", fmt.Sprintf("topic %s already exists", topic))
				continue
			}
			log.Error("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
			continue
		}
		log.LogKafka("TOPIC", topic, "topic created")
	}

	// Give the broker a moment to propagate topic metadata.
	time.Sleep(time.Second)
	return nil
}
