// Package messaging は商品イベントの配信口。
package messaging

import "context"

// 商品イベントのトピック
const ProductEventsTopic = "product-events"

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, event any) error
}

// Consume はctxが終わるまでブロックする
type Subscriber interface {
	Consume(ctx context.Context, topic string, groupID string, handler func(ctx context.Context, payload []byte) error)
}

// 配信先が無いときに使う
type NopPublisher struct{}

func (NopPublisher) PublishEvent(ctx context.Context, topic string, key string, event any) error {
	return nil
}
