package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/efreitasn/tradesim/internal/domain"
)

// KafkaPublisher writes one message per transaction, keyed by owner so a
// user's transactions stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Name identifies the sink in logs.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish sends txs synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	msgs, err := encodeMessages(txs)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessages(txs []domain.Transaction) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(txs))
	for _, tx := range txs {
		val, err := json.Marshal(toRecord(tx))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(tx.Owner),
			Value: val,
			Time:  tx.ExecutedAt,
		})
	}
	return msgs, nil
}
