package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/messaging"

	kafkaGo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaBroker struct {
	brokers []string
	log     *zap.Logger
}

// NewKafkaBroker はKafkaのPublisher/Subscriberを返す
func NewKafkaBroker(brokers []string, log *zap.Logger) (messaging.Publisher, messaging.Subscriber) {
	if log == nil {
		log = zap.NewNop()
	}
	kb := &kafkaBroker{brokers: brokers, log: log}
	return kb, kb
}

func (k *kafkaBroker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	w := &kafkaGo.Writer{
		Addr:     kafkaGo.TCP(k.brokers...),
		Topic:    topic,
		Balancer: &kafkaGo.LeastBytes{},
	}
	defer w.Close()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return w.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

func (k *kafkaBroker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:        k.brokers,
		Topic:          topic,
		GroupID:        groupID,
		StartOffset:    kafkaGo.LastOffset, // 新しいgroupは過去分を読まない
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				k.log.Info("consumer shutting down", zap.String("topic", topic))
				return
			}
			k.log.Error("read message", zap.String("topic", topic), zap.Error(err))
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			k.log.Error("handle message", zap.String("topic", topic), zap.Error(err))
		}
	}
}
