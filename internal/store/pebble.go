package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"fenrir/internal/common"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog/log"
)

// keys: order/<id>, trade/<executedAt>/<id>, cancel/<id>, open/<id>
const (
	orderPrefix  = "order/"
	tradePrefix  = "trade/"
	cancelPrefix = "cancel/"
	openPrefix   = "open/"
)

func orderKey(id string) []byte  { return []byte(orderPrefix + id) }
func cancelKey(id string) []byte { return []byte(cancelPrefix + id) }
func openKey(id string) []byte   { return []byte(openPrefix + id) }

// Trades sort by execution time. Nanoseconds are zero padded so the byte
// order of the keys matches numeric order.
func tradeKey(trade common.Trade) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", tradePrefix, trade.ExecutedAt.UnixNano(), trade.ID))
}

// upperBound is the first key after every key starting with prefix.
func upperBound(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}

// Pebble records events as JSON values in a pebble database.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens or creates the database at path. A nil options uses
// pebble's defaults.
func OpenPebble(path string, options *pebble.Options) (*Pebble, error) {
	if options == nil {
		options = &pebble.Options{}
	}
	db, err := pebble.Open(path, options)
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("pebble recorder opened")
	return &Pebble{db: db}, nil
}

func (p *Pebble) Close() error { return p.db.Close() }

func (p *Pebble) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// RecordOrder stores the order under its id; a modified order overwrites its
// earlier record.
func (p *Pebble) RecordOrder(order common.Order) error {
	return p.put(orderKey(order.ID), order)
}

func (p *Pebble) RecordTrade(trade common.Trade) error {
	return p.put(tradeKey(trade), trade)
}

func (p *Pebble) RecordCancel(order common.Order) error {
	return p.put(cancelKey(order.ID), order)
}

// SaveAllOrders swaps the open order set for orders in one atomic batch.
func (p *Pebble) SaveAllOrders(orders []common.Order) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange([]byte(openPrefix), upperBound(openPrefix), nil); err != nil {
		return fmt.Errorf("failed to clear open orders: %w", err)
	}
	for _, order := range orders {
		data, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("failed to marshal order %s: %w", order.ID, err)
		}
		if err := batch.Set(openKey(order.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage order %s: %w", order.ID, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save open orders: %w", err)
	}

	log.Info().Int("orders", len(orders)).Msg("saved all orders")
	return nil
}

// Order loads the latest record of an order.
func (p *Pebble) Order(id string) (common.Order, bool, error) {
	data, closer, err := p.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return common.Order{}, false, nil
	}
	if err != nil {
		return common.Order{}, false, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	defer closer.Close()

	var order common.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return common.Order{}, false, fmt.Errorf("failed to unmarshal order %s: %w", id, err)
	}
	return order, true, nil
}

// Orders returns every recorded order, by id.
func (p *Pebble) Orders() ([]common.Order, error) {
	return scan[common.Order](p.db, orderPrefix)
}

// Trades returns every recorded trade in execution order.
func (p *Pebble) Trades() ([]common.Trade, error) {
	return scan[common.Trade](p.db, tradePrefix)
}

func (p *Pebble) Cancelled() ([]common.Order, error) {
	return scan[common.Order](p.db, cancelPrefix)
}

// OpenOrders returns the set written by the last SaveAllOrders.
func (p *Pebble) OpenOrders() ([]common.Order, error) {
	return scan[common.Order](p.db, openPrefix)
}

func scan[T any](db *pebble.DB, prefix string) ([]T, error) {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", prefix, err)
	}

	var out []T
	for iter.First(); iter.Valid(); iter.Next() {
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, errors.Join(fmt.Errorf("failed to unmarshal %s: %w", iter.Key(), err), iter.Close())
		}
		out = append(out, v)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", prefix, err)
	}
	return out, nil
}
