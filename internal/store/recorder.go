// Package store keeps a durable record of what the exchange did: accepted
// orders, trades, cancellations and the resting book at export time.
package store

import (
	"fenrir/internal/common"
)

// Recorder receives every event the exchange wants on record. Implementations
// must be safe for concurrent use.
type Recorder interface {
	RecordOrder(order common.Order) error
	RecordTrade(trade common.Trade) error
	RecordCancel(order common.Order) error
	// SaveAllOrders replaces the saved set of open orders with orders.
	SaveAllOrders(orders []common.Order) error
	Close() error
}

// Nop discards everything. Used when persistence is switched off.
type Nop struct{}

func (Nop) RecordOrder(common.Order) error     { return nil }
func (Nop) RecordTrade(common.Trade) error     { return nil }
func (Nop) RecordCancel(common.Order) error    { return nil }
func (Nop) SaveAllOrders([]common.Order) error { return nil }
func (Nop) Close() error                       { return nil }

var (
	_ Recorder = Nop{}
	_ Recorder = (*CSV)(nil)
	_ Recorder = (*Pebble)(nil)
)
