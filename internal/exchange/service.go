// Package exchange runs orders through the matching engine and then records
// and announces what happened.
package exchange

import (
	"context"
	"fmt"

	"fenrir/internal/common"
	"fenrir/internal/engine"
	"fenrir/internal/notify"
	"fenrir/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Service is the single entry point for order flow. The engine decides the
// outcome of every request; the recorder and notifier only hear about it
// afterwards, and their failures are logged without touching the book.
type Service struct {
	engine   *engine.Engine
	recorder store.Recorder
	notifier notify.Notifier
}

func NewService(eng *engine.Engine, recorder store.Recorder, notifier notify.Notifier) *Service {
	if recorder == nil {
		recorder = store.Nop{}
	}
	if notifier == nil {
		notifier = notify.Multi(nil)
	}
	return &Service{engine: eng, recorder: recorder, notifier: notifier}
}

// Place submits a new order and returns the trades it caused.
func (s *Service) Place(ctx context.Context, order common.Order) ([]common.Trade, error) {
	trades, err := s.engine.PlaceOrder(order)
	if err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Str("symbol", order.Symbol).Msg("order rejected")
		return nil, err
	}

	// The engine stamps the creation time. An order that traded away at once
	// was created just before its first fill.
	if resting, ok := s.engine.Order(order.ID); ok {
		order.CreatedAt = resting.CreatedAt
	} else if len(trades) > 0 {
		order.CreatedAt = trades[0].ExecutedAt
	}

	log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Stringer("side", order.Side).
		Str("price", order.Price.String()).
		Uint64("quantity", order.Quantity).
		Int("trades", len(trades)).
		Msg("order placed")

	s.warn(s.recorder.RecordOrder(order), "record order", order.ID)
	s.warn(s.notifier.OrderPlaced(ctx, order), "notify order placed", order.ID)
	s.trades(ctx, trades)
	return trades, nil
}

// Modify changes the price and quantity of a resting order.
func (s *Service) Modify(ctx context.Context, id string, price decimal.Decimal, quantity uint64) ([]common.Trade, error) {
	before, _ := s.engine.Order(id)
	trades, err := s.engine.ModifyOrder(id, price, quantity)
	if err != nil {
		log.Warn().Err(err).Str("order_id", id).Msg("modify rejected")
		return nil, err
	}

	// The order as modified, before any fills it caused. It may have traded
	// away completely, in which case the earlier copy supplies the rest.
	modified, ok := s.engine.Order(id)
	if !ok {
		modified = before
		modified.ID = id
	}
	modified.Price = price
	modified.Quantity = quantity

	log.Info().
		Str("order_id", id).
		Str("symbol", modified.Symbol).
		Str("price", price.String()).
		Uint64("quantity", quantity).
		Int("trades", len(trades)).
		Msg("order modified")

	s.warn(s.recorder.RecordOrder(modified), "record order", id)
	s.warn(s.notifier.OrderModified(ctx, modified), "notify order modified", id)
	s.trades(ctx, trades)
	return trades, nil
}

// Cancel removes a resting order and returns it.
func (s *Service) Cancel(ctx context.Context, id string) (common.Order, error) {
	order, err := s.engine.CancelOrder(id)
	if err != nil {
		log.Warn().Err(err).Str("order_id", id).Msg("cancel rejected")
		return common.Order{}, err
	}

	log.Info().Str("order_id", id).Str("symbol", order.Symbol).Msg("order cancelled")

	s.warn(s.recorder.RecordCancel(order), "record cancel", id)
	s.warn(s.notifier.OrderCancelled(ctx, order), "notify order cancelled", id)
	return order, nil
}

func (s *Service) Book(symbol string) (engine.BookView, error) {
	return s.engine.BookSnapshot(symbol)
}

func (s *Service) Depth(symbol string) (bids, asks []engine.PriceLevel, err error) {
	return s.engine.Depth(symbol)
}

// Order returns a resting order.
func (s *Service) Order(id string) (common.Order, bool) {
	return s.engine.Order(id)
}

func (s *Service) Orders() []common.Order {
	return s.engine.AllOrders()
}

// Export saves every resting order through the recorder.
func (s *Service) Export(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	orders := s.engine.AllOrders()
	if err := s.recorder.SaveAllOrders(orders); err != nil {
		return fmt.Errorf("export orders: %w", err)
	}
	log.Info().Int("orders", len(orders)).Msg("orders exported")
	return nil
}

func (s *Service) trades(ctx context.Context, trades []common.Trade) {
	for _, trade := range trades {
		log.Info().
			Str("trade_id", trade.ID).
			Str("buy_order_id", trade.BuyOrderID).
			Str("sell_order_id", trade.SellOrderID).
			Str("symbol", trade.Symbol).
			Str("price", trade.Price.String()).
			Uint64("quantity", trade.Quantity).
			Msg("trade executed")

		s.warn(s.recorder.RecordTrade(trade), "record trade", trade.ID)
		s.warn(s.notifier.TradeExecuted(ctx, trade), "notify trade executed", trade.ID)
	}
}

func (s *Service) warn(err error, action, id string) {
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg(action + " failed")
	}
}
