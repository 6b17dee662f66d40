// Package kafka provides shared Kafka producer helpers.
package kafka

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// WriteTimeout bounds a synchronous produce call.
const WriteTimeout = 5 * time.Second

// ParseBrokers parses a comma-separated broker list and trims whitespace.
func ParseBrokers(brokers string) []string {
	if strings.TrimSpace(brokers) == "" {
		return nil
	}
	parts := strings.Split(brokers, ",")
	brokerList := make([]string, 0, len(parts))
	for _, b := range parts {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	return brokerList
}

// ValidateProducerParams validates common producer parameters.
func ValidateProducerParams(brokers, topic string) error {
	if len(ParseBrokers(brokers)) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	return nil
}

// NewWriter creates a synchronous, key-hashed writer with at-least-once
// acknowledgement.
func NewWriter(brokers, topic string) (*kafka.Writer, error) {
	if err := ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}
	brokerList := ParseBrokers(brokers)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerList...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	slog.Info("Kafka producer configured",
		"brokers", brokerList,
		"topic", topic,
		"write_timeout", WriteTimeout,
		"required_acks", "RequireOne",
	)
	return writer, nil
}
