package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fenrir/internal/common"

	"github.com/rs/zerolog/log"
)

const (
	OrdersFile    = "orders.csv"
	TradesFile    = "trades.csv"
	CancelledFile = "cancelled.csv"
)

// CSV appends records to three files in one directory. Each file starts with
// a header row when it is created or found empty.
type CSV struct {
	mu        sync.Mutex
	orders    *os.File
	trades    *os.File
	cancelled *os.File
}

func OpenCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record directory: %w", err)
	}

	c := &CSV{}
	var err error
	if c.orders, err = openLog(filepath.Join(dir, OrdersFile), common.OrderHeader); err != nil {
		return nil, err
	}
	if c.trades, err = openLog(filepath.Join(dir, TradesFile), common.TradeHeader); err != nil {
		return nil, errors.Join(err, c.orders.Close())
	}
	if c.cancelled, err = openLog(filepath.Join(dir, CancelledFile), common.OrderHeader); err != nil {
		return nil, errors.Join(err, c.orders.Close(), c.trades.Close())
	}

	log.Info().Str("dir", dir).Msg("csv recorder opened")
	return c, nil
}

func openLog(path string, header []string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("stat %s: %w", path, err), f.Close())
	}
	if info.Size() == 0 {
		if err := writeRows(f, header); err != nil {
			return nil, errors.Join(err, f.Close())
		}
	}
	return f, nil
}

func writeRows(f *os.File, rows ...[]string) error {
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}

func (c *CSV) RecordOrder(order common.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return writeRows(c.orders, order.Record())
}

func (c *CSV) RecordTrade(trade common.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return writeRows(c.trades, trade.Record())
}

func (c *CSV) RecordCancel(order common.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return writeRows(c.cancelled, order.Record())
}

// SaveAllOrders truncates the orders file and writes the header followed by
// one row per order. Later RecordOrder calls append after them.
func (c *CSV) SaveAllOrders(orders []common.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.orders.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", c.orders.Name(), err)
	}
	rows := make([][]string, 0, len(orders)+1)
	rows = append(rows, common.OrderHeader)
	for _, order := range orders {
		rows = append(rows, order.Record())
	}
	if err := writeRows(c.orders, rows...); err != nil {
		return err
	}

	log.Info().Int("orders", len(orders)).Str("file", c.orders.Name()).Msg("saved all orders")
	return nil
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return errors.Join(c.orders.Close(), c.trades.Close(), c.cancelled.Close())
}
