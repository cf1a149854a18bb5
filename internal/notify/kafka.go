package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fenrir/internal/common"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	EventOrderPlaced    EventType = "order.placed"
	EventOrderModified  EventType = "order.modified"
	EventOrderCancelled EventType = "order.cancelled"
	EventTradeExecuted  EventType = "trade.executed"
)

// Event is the JSON value of every published message. Exactly one of Order
// and Trade is set.
type Event struct {
	Type  EventType     `json:"type"`
	Order *common.Order `json:"order,omitempty"`
	Trade *common.Trade `json:"trade,omitempty"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes events to one topic keyed by symbol, so all events
// for a symbol land on one partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string, batchTimeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: batchTimeout,
		},
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, symbol string, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(symbol),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) OrderPlaced(ctx context.Context, order common.Order) error {
	return p.publish(ctx, order.Symbol, Event{Type: EventOrderPlaced, Order: &order})
}

func (p *KafkaPublisher) OrderModified(ctx context.Context, order common.Order) error {
	return p.publish(ctx, order.Symbol, Event{Type: EventOrderModified, Order: &order})
}

func (p *KafkaPublisher) OrderCancelled(ctx context.Context, order common.Order) error {
	return p.publish(ctx, order.Symbol, Event{Type: EventOrderCancelled, Order: &order})
}

func (p *KafkaPublisher) TradeExecuted(ctx context.Context, trade common.Trade) error {
	return p.publish(ctx, trade.Symbol, Event{Type: EventTradeExecuted, Trade: &trade})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
