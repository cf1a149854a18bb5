package engine

import (
	"fmt"
	"sync"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Side of the book, keyed per order by (price, time, id). Orders are stored
// by pointer so fills can decrement quantities in place; price and time are
// never changed while an order is in a tree.
type bookSide = btree.BTreeG[*common.Order]

type OrderBook struct {
	mu     sync.Mutex
	symbol string

	// Best first: highest price for bids, lowest for asks, then oldest.
	bids *bookSide
	asks *bookSide
	byID map[string]*common.Order

	settings settings

	// Called under mu whenever an order leaves the book through a fill or a
	// cancel. The engine uses it to keep its id index in step.
	onRemove func(id string)
}

// Ties on price and time fall back to the id so the ordering is total even
// when a caller supplied clock repeats itself.
func timeLess(a, b *common.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func bidLess(a, b *common.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return timeLess(a, b)
}

func askLess(a, b *common.Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return timeLess(a, b)
}

func NewOrderBook(symbol string, opts ...Option) *OrderBook {
	return newOrderBook(symbol, buildSettings(opts))
}

func newOrderBook(symbol string, s settings) *OrderBook {
	// The book serialises access itself, the trees need no locks of their own.
	treeOpts := btree.Options{NoLocks: true}
	return &OrderBook{
		symbol:   symbol,
		bids:     btree.NewBTreeGOptions(bidLess, treeOpts),
		asks:     btree.NewBTreeGOptions(askLess, treeOpts),
		byID:     make(map[string]*common.Order),
		settings: s,
	}
}

func (book *OrderBook) Symbol() string {
	return book.symbol
}

// AddOrder rests a new limit order and matches away any cross it creates.
// An order without a creation time is stamped from the book's clock.
func (book *OrderBook) AddOrder(order common.Order) ([]common.Trade, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if order.Symbol != book.symbol {
		return nil, fmt.Errorf("%w: symbol %s does not belong to book %s", ErrInvalidOrder, order.Symbol, book.symbol)
	}

	book.mu.Lock()
	defer book.mu.Unlock()

	if _, ok := book.byID[order.ID]; ok {
		return nil, ErrDuplicateOrderID
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = book.settings.clock.Now()
	}

	book.insert(&order)
	return book.match(), nil
}

// ModifyOrder replaces a resting order with one carrying the same id, symbol
// and side at a new price and quantity, then matches. The replacement's
// creation time follows the book's ModifyPolicy.
func (book *OrderBook) ModifyOrder(id string, price decimal.Decimal, quantity uint64) ([]common.Trade, error) {
	book.mu.Lock()
	defer book.mu.Unlock()

	existing, ok := book.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if err := validateTerms(price, quantity); err != nil {
		return nil, err
	}

	replacement := *existing
	replacement.Price = price
	replacement.Quantity = quantity
	if book.settings.policy == ResetTimePriority {
		replacement.CreatedAt = book.settings.clock.Now()
	}

	book.unlink(existing)
	book.insert(&replacement)
	return book.match(), nil
}

// CancelOrder removes a resting order and returns it as it stood.
func (book *OrderBook) CancelOrder(id string) (common.Order, bool) {
	book.mu.Lock()
	defer book.mu.Unlock()

	order, ok := book.byID[id]
	if !ok {
		return common.Order{}, false
	}
	book.remove(order)
	return *order, true
}

// Contains reports whether an order with this id is resting in the book.
func (book *OrderBook) Contains(id string) bool {
	book.mu.Lock()
	defer book.mu.Unlock()

	_, ok := book.byID[id]
	return ok
}

// Order returns a copy of a resting order.
func (book *OrderBook) Order(id string) (common.Order, bool) {
	book.mu.Lock()
	defer book.mu.Unlock()

	order, ok := book.byID[id]
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// Len is the number of resting orders.
func (book *OrderBook) Len() int {
	book.mu.Lock()
	defer book.mu.Unlock()

	return len(book.byID)
}

// AllOrders returns a copy of every resting order, in no particular order.
func (book *OrderBook) AllOrders() []common.Order {
	book.mu.Lock()
	defer book.mu.Unlock()

	orders := make([]common.Order, 0, len(book.byID))
	for _, order := range book.byID {
		orders = append(orders, *order)
	}
	return orders
}

// View copies both sides of the book, best first.
func (book *OrderBook) View() BookView {
	book.mu.Lock()
	defer book.mu.Unlock()

	return BookView{
		Symbol: book.symbol,
		Bids:   flatten(book.bids),
		Asks:   flatten(book.asks),
	}
}

// Depth aggregates both sides into price levels, best first.
func (book *OrderBook) Depth() (bids, asks []PriceLevel) {
	book.mu.Lock()
	defer book.mu.Unlock()

	return levels(book.bids), levels(book.asks)
}

// BestBid returns the highest priority resting buy order.
func (book *OrderBook) BestBid() (common.Order, bool) {
	book.mu.Lock()
	defer book.mu.Unlock()

	order, ok := book.bids.Min()
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// BestAsk returns the highest priority resting sell order.
func (book *OrderBook) BestAsk() (common.Order, bool) {
	book.mu.Lock()
	defer book.mu.Unlock()

	order, ok := book.asks.Min()
	if !ok {
		return common.Order{}, false
	}
	return *order, true
}

// match consumes the top of book while it crosses (bid >= ask), trading in
// price-time priority. Each step trades the smaller of the two quantities at
// the price of whichever order is older; on a timestamp tie the ask price
// is used. Must be called with mu held.
func (book *OrderBook) match() []common.Trade {
	var trades []common.Trade
	for {
		bid, bidOk := book.bids.Min()
		ask, askOk := book.asks.Min()

		// If either side is empty, or prices don't cross, we are done.
		if !bidOk || !askOk || bid.Price.LessThan(ask.Price) {
			break
		}

		quantity := min(bid.Quantity, ask.Quantity)
		price := ask.Price
		if bid.CreatedAt.Before(ask.CreatedAt) {
			price = bid.Price
		}

		bid.Quantity -= quantity
		ask.Quantity -= quantity

		trades = append(trades, common.Trade{
			ID:          book.settings.tradeID(),
			BuyOrderID:  bid.ID,
			SellOrderID: ask.ID,
			Symbol:      book.symbol,
			Price:       price,
			Quantity:    quantity,
			ExecutedAt:  book.settings.clock.Now(),
		})

		if bid.Quantity == 0 {
			book.remove(bid)
		}
		if ask.Quantity == 0 {
			book.remove(ask)
		}
	}
	return trades
}

func (book *OrderBook) side(side common.Side) *bookSide {
	if side == common.Buy {
		return book.bids
	}
	return book.asks
}

func (book *OrderBook) insert(order *common.Order) {
	book.side(order.Side).Set(order)
	book.byID[order.ID] = order
}

// unlink drops the order from its side and the id map without telling the
// engine, for replacements that keep the id alive.
func (book *OrderBook) unlink(order *common.Order) {
	book.side(order.Side).Delete(order)
	delete(book.byID, order.ID)
}

// remove takes the order out of the book for good.
func (book *OrderBook) remove(order *common.Order) {
	book.unlink(order)
	if book.onRemove != nil {
		book.onRemove(order.ID)
	}
}

func flatten(side *bookSide) []common.Order {
	orders := make([]common.Order, 0, side.Len())
	side.Scan(func(order *common.Order) bool {
		orders = append(orders, *order)
		return true
	})
	return orders
}

// Orders at one price are adjacent in a side since price leads the key.
func levels(side *bookSide) []PriceLevel {
	var out []PriceLevel
	side.Scan(func(order *common.Order) bool {
		if n := len(out); n > 0 && out[n-1].Price.Equal(order.Price) {
			out[n-1].Quantity += order.Quantity
			out[n-1].Orders++
			return true
		}
		out = append(out, PriceLevel{
			Price:    order.Price,
			Quantity: order.Quantity,
			Orders:   1,
		})
		return true
	})
	return out
}
