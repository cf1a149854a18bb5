// Package notify tells the outside world about order lifecycle events.
package notify

import (
	"context"
	"errors"

	"fenrir/internal/common"
)

// Notifier is told about every order placed, modified or cancelled and every
// trade executed. Implementations must be safe for concurrent use.
type Notifier interface {
	OrderPlaced(ctx context.Context, order common.Order) error
	OrderModified(ctx context.Context, order common.Order) error
	OrderCancelled(ctx context.Context, order common.Order) error
	TradeExecuted(ctx context.Context, trade common.Trade) error
}

// Multi fans every event out to all of its notifiers. One failing notifier
// does not stop the others; their errors are joined.
type Multi []Notifier

func (m Multi) OrderPlaced(ctx context.Context, order common.Order) error {
	return m.each(func(n Notifier) error { return n.OrderPlaced(ctx, order) })
}

func (m Multi) OrderModified(ctx context.Context, order common.Order) error {
	return m.each(func(n Notifier) error { return n.OrderModified(ctx, order) })
}

func (m Multi) OrderCancelled(ctx context.Context, order common.Order) error {
	return m.each(func(n Notifier) error { return n.OrderCancelled(ctx, order) })
}

func (m Multi) TradeExecuted(ctx context.Context, trade common.Trade) error {
	return m.each(func(n Notifier) error { return n.TradeExecuted(ctx, trade) })
}

func (m Multi) each(call func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := call(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = Multi(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*KafkaPublisher)(nil)
)
