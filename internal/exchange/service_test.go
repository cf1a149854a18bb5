package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/engine"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

type fakeRecorder struct {
	mu        sync.Mutex
	orders    []common.Order
	trades    []common.Trade
	cancelled []common.Order
	saved     []common.Order
	err       error
}

func (r *fakeRecorder) RecordOrder(order common.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return r.err
}

func (r *fakeRecorder) RecordTrade(trade common.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, trade)
	return r.err
}

func (r *fakeRecorder) RecordCancel(order common.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, order)
	return r.err
}

func (r *fakeRecorder) SaveAllOrders(orders []common.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = orders
	return r.err
}

func (r *fakeRecorder) Close() error { return nil }

type fakeNotifier struct {
	events []string
	err    error
}

func (n *fakeNotifier) OrderPlaced(_ context.Context, o common.Order) error {
	n.events = append(n.events, "placed "+o.ID)
	return n.err
}

func (n *fakeNotifier) OrderModified(_ context.Context, o common.Order) error {
	n.events = append(n.events, "modified "+o.ID)
	return n.err
}

func (n *fakeNotifier) OrderCancelled(_ context.Context, o common.Order) error {
	n.events = append(n.events, "cancelled "+o.ID)
	return n.err
}

func (n *fakeNotifier) TradeExecuted(_ context.Context, t common.Trade) error {
	n.events = append(n.events, "trade "+t.BuyOrderID+"/"+t.SellOrderID)
	return n.err
}

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestService(recorder *fakeRecorder, notifier *fakeNotifier) *Service {
	eng := engine.New(engine.WithClock(&tickClock{now: time.UnixMilli(1_700_000_000_000)}))
	return NewService(eng, recorder, notifier)
}

func order(id string, side common.Side, price string, qty uint64) common.Order {
	return common.Order{ID: id, Symbol: "AAPL", Side: side, Price: decimal.RequireFromString(price), Quantity: qty}
}

// --- Tests ------------------------------------------------------------------

func TestService_PlaceRecordsAndNotifies(t *testing.T) {
	rec, note := &fakeRecorder{}, &fakeNotifier{}
	svc := newTestService(rec, note)
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "100", 50))
	require.NoError(t, err)
	trades, err := svc.Place(ctx, order("S1", common.Sell, "95", 30))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	require.Len(t, rec.orders, 2)
	assert.False(t, rec.orders[0].CreatedAt.IsZero(), "recorded order carries the engine timestamp")
	assert.Equal(t, uint64(30), rec.orders[1].Quantity, "recorded as submitted")
	assert.Equal(t, trades, rec.trades)
	assert.Equal(t, []string{"placed B1", "placed S1", "trade B1/S1"}, note.events)
}

func TestService_RejectionIsNotRecorded(t *testing.T) {
	rec, note := &fakeRecorder{}, &fakeNotifier{}
	svc := newTestService(rec, note)
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "0", 50))
	assert.ErrorIs(t, err, engine.ErrInvalidOrder)
	_, err = svc.Modify(ctx, "nope", decimal.NewFromInt(1), 1)
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)
	_, err = svc.Cancel(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrOrderNotFound)

	assert.Empty(t, rec.orders)
	assert.Empty(t, rec.cancelled)
	assert.Empty(t, note.events)
}

func TestService_ModifyRecordsNewTerms(t *testing.T) {
	rec, note := &fakeRecorder{}, &fakeNotifier{}
	svc := newTestService(rec, note)
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "90", 10))
	require.NoError(t, err)
	_, err = svc.Place(ctx, order("S1", common.Sell, "100", 4))
	require.NoError(t, err)

	trades, err := svc.Modify(ctx, "B1", decimal.NewFromInt(100), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	require.Len(t, rec.orders, 3)
	modified := rec.orders[2]
	assert.Equal(t, "B1", modified.ID)
	assert.Equal(t, "AAPL", modified.Symbol)
	assert.Equal(t, common.Buy, modified.Side)
	assert.True(t, decimal.NewFromInt(100).Equal(modified.Price))
	assert.Equal(t, uint64(10), modified.Quantity)
	assert.Equal(t, rec.orders[0].CreatedAt, modified.CreatedAt)
	assert.Equal(t, []string{"placed B1", "placed S1", "modified B1", "trade B1/S1"}, note.events)
}

func TestService_ModifyFullyFilled(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newTestService(rec, &fakeNotifier{})
	ctx := context.Background()

	_, err := svc.Place(ctx, order("S1", common.Sell, "100", 10))
	require.NoError(t, err)
	_, err = svc.Place(ctx, order("B1", common.Buy, "90", 10))
	require.NoError(t, err)

	_, err = svc.Modify(ctx, "B1", decimal.NewFromInt(100), 10)
	require.NoError(t, err)

	modified := rec.orders[2]
	assert.Equal(t, "AAPL", modified.Symbol)
	assert.Equal(t, common.Buy, modified.Side)
	assert.Empty(t, svc.Orders())
}

func TestService_CancelRecords(t *testing.T) {
	rec, note := &fakeRecorder{}, &fakeNotifier{}
	svc := newTestService(rec, note)
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "90", 10))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "B1", cancelled.ID)
	assert.Equal(t, []common.Order{cancelled}, rec.cancelled)
	assert.Contains(t, note.events, "cancelled B1")

	_, err = svc.Book("AAPL")
	assert.NoError(t, err)
	_, err = svc.Book("MSFT")
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
}

func TestService_CollaboratorFailuresLeaveBookAlone(t *testing.T) {
	boom := errors.New("disk full")
	rec, note := &fakeRecorder{err: boom}, &fakeNotifier{err: boom}
	svc := newTestService(rec, note)
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "100", 50))
	require.NoError(t, err)
	trades, err := svc.Place(ctx, order("S1", common.Sell, "100", 20))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	_, err = svc.Modify(ctx, "B1", decimal.NewFromInt(101), 40)
	require.NoError(t, err)

	view, err := svc.Book("AAPL")
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, uint64(40), view.Bids[0].Quantity)
	assert.True(t, decimal.NewFromInt(101).Equal(view.Bids[0].Price))

	bids, _, err := svc.Depth("AAPL")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, uint64(40), bids[0].Quantity)
}

func TestService_Export(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newTestService(rec, &fakeNotifier{})
	ctx := context.Background()

	_, err := svc.Place(ctx, order("B1", common.Buy, "90", 10))
	require.NoError(t, err)
	_, err = svc.Place(ctx, order("S1", common.Sell, "95", 10))
	require.NoError(t, err)

	require.NoError(t, svc.Export(ctx))
	assert.ElementsMatch(t, svc.Orders(), rec.saved)

	rec.err = errors.New("read only")
	assert.ErrorIs(t, svc.Export(ctx), rec.err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, svc.Export(cancelled), context.Canceled)
}
