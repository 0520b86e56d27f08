package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/tn1392/stock-reserve/internal/core/domain"
)

// KafkaNotifier publishes domain events through a shared kafka.Writer whose
// lifecycle belongs to the caller. Messages are keyed by item so per-item
// ordering survives partitioning.
type KafkaNotifier struct {
	writer          *kafka.Writer
	settlementTopic string
	priceTopic      string
}

func NewKafkaNotifier(writer *kafka.Writer, settlementTopic, priceTopic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer:          writer,
		settlementTopic: settlementTopic,
		priceTopic:      priceTopic,
	}
}

func (n *KafkaNotifier) PublishSettlement(ctx context.Context, event domain.SettlementEvent) error {
	return n.publish(ctx, n.settlementTopic, event.ItemID, event)
}

func (n *KafkaNotifier) PublishPriceUpdate(ctx context.Context, event domain.PriceUpdatedEvent) error {
	return n.publish(ctx, n.priceTopic, event.ItemKey, event)
}

func (n *KafkaNotifier) publish(ctx context.Context, topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}

	return nil
}
