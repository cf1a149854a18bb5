package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fenrir/internal/common"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

var epoch = time.UnixMilli(1_700_000_000_000)

func testOrder(id string, side common.Side, price string, qty uint64, at int) common.Order {
	return common.Order{
		ID:        id,
		Symbol:    "AAPL",
		Side:      side,
		Price:     decimal.RequireFromString(price),
		Quantity:  qty,
		CreatedAt: epoch.Add(time.Duration(at) * time.Millisecond),
	}
}

func testTrade(id string, qty uint64, at int) common.Trade {
	return common.Trade{
		ID:          id,
		BuyOrderID:  "B1",
		SellOrderID: "S1",
		Symbol:      "AAPL",
		Price:       decimal.RequireFromString("100.5"),
		Quantity:    qty,
		ExecutedAt:  epoch.Add(time.Duration(at) * time.Millisecond),
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func assertSameOrder(t *testing.T, want, got common.Order) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Symbol, got.Symbol)
	assert.Equal(t, want.Side, got.Side)
	assert.True(t, want.Price.Equal(got.Price), "price: want %s, got %s", want.Price, got.Price)
	assert.Equal(t, want.Quantity, got.Quantity)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created at")
}

func openMemPebble(t *testing.T) *Pebble {
	t.Helper()
	p, err := OpenPebble("records", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// --- CSV --------------------------------------------------------------------

func TestCSV_HeadersAndRows(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCSV(dir)
	require.NoError(t, err)

	require.NoError(t, c.RecordOrder(testOrder("B1", common.Buy, "100", 50, 0)))
	require.NoError(t, c.RecordTrade(testTrade("T1", 30, 1)))
	require.NoError(t, c.RecordCancel(testOrder("S9", common.Sell, "101.25", 5, 2)))
	require.NoError(t, c.Close())

	assert.Equal(t, [][]string{
		{"orderId", "symbol", "type", "price", "quantity", "timestamp"},
		{"B1", "AAPL", "BUY", "100", "50", "1700000000000"},
	}, readCSV(t, filepath.Join(dir, OrdersFile)))

	assert.Equal(t, [][]string{
		{"tradeId", "buyOrderId", "sellOrderId", "symbol", "price", "quantity", "timestamp"},
		{"T1", "B1", "S1", "AAPL", "100.5", "30", "1700000000001"},
	}, readCSV(t, filepath.Join(dir, TradesFile)))

	assert.Equal(t, [][]string{
		{"orderId", "symbol", "type", "price", "quantity", "timestamp"},
		{"S9", "AAPL", "SELL", "101.25", "5", "1700000000002"},
	}, readCSV(t, filepath.Join(dir, CancelledFile)))
}

func TestCSV_ReopenAppendsWithoutSecondHeader(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []string{"B1", "B2"} {
		c, err := OpenCSV(dir)
		require.NoError(t, err)
		require.NoError(t, c.RecordOrder(testOrder(id, common.Buy, "100", 1, 0)))
		require.NoError(t, c.Close())
	}

	rows := readCSV(t, filepath.Join(dir, OrdersFile))
	require.Len(t, rows, 3)
	assert.Equal(t, "orderId", rows[0][0])
	assert.Equal(t, "B1", rows[1][0])
	assert.Equal(t, "B2", rows[2][0])
}

func TestCSV_SaveAllOrdersTruncates(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCSV(dir)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RecordOrder(testOrder("OLD", common.Buy, "1", 1, 0)))
	require.NoError(t, c.SaveAllOrders([]common.Order{
		testOrder("B1", common.Buy, "99", 10, 1),
		testOrder("S1", common.Sell, "101", 20, 2),
	}))

	rows := readCSV(t, filepath.Join(dir, OrdersFile))
	require.Len(t, rows, 3)
	assert.Equal(t, common.OrderHeader, rows[0])
	assert.Equal(t, "B1", rows[1][0])
	assert.Equal(t, "S1", rows[2][0])

	// Appends continue after the saved set.
	require.NoError(t, c.RecordOrder(testOrder("B2", common.Buy, "98", 1, 3)))
	rows = readCSV(t, filepath.Join(dir, OrdersFile))
	require.Len(t, rows, 4)
	assert.Equal(t, "B2", rows[3][0])
}

// --- Pebble -----------------------------------------------------------------

func TestPebble_RecordAndReadBack(t *testing.T) {
	p := openMemPebble(t)

	b1 := testOrder("B1", common.Buy, "100", 50, 0)
	require.NoError(t, p.RecordOrder(b1))
	require.NoError(t, p.RecordOrder(testOrder("S1", common.Sell, "101", 5, 1)))

	// A modify overwrites the earlier record.
	b1.Quantity = 20
	require.NoError(t, p.RecordOrder(b1))

	got, ok, err := p.Order("B1")
	require.NoError(t, err)
	require.True(t, ok)
	assertSameOrder(t, b1, got)

	_, ok, err = p.Order("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	orders, err := p.Orders()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "B1", orders[0].ID)
	assert.Equal(t, "S1", orders[1].ID)

	require.NoError(t, p.RecordCancel(orders[1]))
	cancelled, err := p.Cancelled()
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assertSameOrder(t, orders[1], cancelled[0])
}

func TestPebble_TradesInExecutionOrder(t *testing.T) {
	p := openMemPebble(t)

	// Ids sort opposite to execution time.
	require.NoError(t, p.RecordTrade(testTrade("T-c", 3, 10)))
	require.NoError(t, p.RecordTrade(testTrade("T-b", 2, 5)))
	require.NoError(t, p.RecordTrade(testTrade("T-a", 1, 1000)))

	trades, err := p.Trades()
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, []string{"T-b", "T-c", "T-a"}, []string{trades[0].ID, trades[1].ID, trades[2].ID})
	assert.True(t, decimal.RequireFromString("100.5").Equal(trades[0].Price))
	assert.Equal(t, uint64(2), trades[0].Quantity)
}

func TestPebble_SaveAllOrdersReplacesOpenSet(t *testing.T) {
	p := openMemPebble(t)

	require.NoError(t, p.SaveAllOrders([]common.Order{
		testOrder("B1", common.Buy, "99", 10, 0),
		testOrder("B2", common.Buy, "98", 10, 1),
	}))
	require.NoError(t, p.SaveAllOrders([]common.Order{
		testOrder("S1", common.Sell, "101", 20, 2),
	}))

	open, err := p.OpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assertSameOrder(t, testOrder("S1", common.Sell, "101", 20, 2), open[0])

	require.NoError(t, p.SaveAllOrders(nil))
	open, err = p.OpenOrders()
	require.NoError(t, err)
	assert.Empty(t, open)

	// Open orders live apart from the order records.
	orders, err := p.Orders()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.RecordOrder(common.Order{}))
	assert.NoError(t, r.RecordTrade(common.Trade{}))
	assert.NoError(t, r.RecordCancel(common.Order{}))
	assert.NoError(t, r.SaveAllOrders(nil))
	assert.NoError(t, r.Close())
}
