package notify

import (
	"context"

	"fenrir/internal/common"

	"github.com/rs/zerolog"
)

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) order(event string, order common.Order) {
	n.logger.Info().
		Str("event", event).
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Stringer("side", order.Side).
		Str("price", order.Price.String()).
		Uint64("quantity", order.Quantity).
		Msg(event)
}

func (n *LogNotifier) OrderPlaced(_ context.Context, order common.Order) error {
	n.order("order placed", order)
	return nil
}

func (n *LogNotifier) OrderModified(_ context.Context, order common.Order) error {
	n.order("order modified", order)
	return nil
}

func (n *LogNotifier) OrderCancelled(_ context.Context, order common.Order) error {
	n.order("order cancelled", order)
	return nil
}

func (n *LogNotifier) TradeExecuted(_ context.Context, trade common.Trade) error {
	n.logger.Info().
		Str("event", "trade executed").
		Str("trade_id", trade.ID).
		Str("buy_order_id", trade.BuyOrderID).
		Str("sell_order_id", trade.SellOrderID).
		Str("symbol", trade.Symbol).
		Str("price", trade.Price.String()).
		Uint64("quantity", trade.Quantity).
		Msg("trade executed")
	return nil
}
