// Package inmem はプロセス内のイベントバス（watermill gochannel）。
// Kafkaが無い環境とテストで使う。
package inmem

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/messaging"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

type Broker struct {
	pubsub *gochannel.GoChannel
	log    *zap.Logger
}

var (
	_ messaging.Publisher  = (*Broker)(nil)
	_ messaging.Subscriber = (*Broker)(nil)
)

func NewBroker(log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{}),
		log:    log,
	}
}

func (b *Broker) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("key", key)
	msg.SetContext(ctx)
	return b.pubsub.Publish(topic, msg)
}

// groupIDはgochannelでは使わない（購読者全員に届く）
func (b *Broker) Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		b.log.Error("subscribe", zap.String("topic", topic), zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			b.log.Info("consumer shutting down", zap.String("topic", topic))
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := handler(ctx, msg.Payload); err != nil {
				b.log.Error("handle message", zap.String("topic", topic), zap.Error(err))
			}
			msg.Ack()
		}
	}
}

func (b *Broker) Close() error {
	return b.pubsub.Close()
}
