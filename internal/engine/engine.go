package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

// Engine is the matching engine. It owns one OrderBook per symbol, created on
// the first order for that symbol, and an index from order id to symbol so
// modify and cancel can find the right book without scanning.
type Engine struct {
	settings settings

	booksLock sync.RWMutex
	books     map[string]*OrderBook

	// Ids are reserved here before their order reaches a book and released
	// from inside the book's critical section when the order leaves it.
	indexLock sync.Mutex
	index     map[string]string
}

func New(opts ...Option) *Engine {
	return &Engine{
		settings: buildSettings(opts),
		books:    make(map[string]*OrderBook),
		index:    make(map[string]string),
	}
}

// PlaceOrder rests a limit order on its symbol's book and returns the trades
// it produced. The engine assigns the creation timestamp; any value the
// caller set is discarded.
func (engine *Engine) PlaceOrder(order common.Order) ([]common.Trade, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	if !engine.reserve(order.ID, order.Symbol) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOrderID, order.ID)
	}

	order.CreatedAt = time.Time{}
	trades, err := engine.bookFor(order.Symbol).AddOrder(order)
	if err != nil {
		engine.release(order.ID)
		return nil, err
	}
	return trades, nil
}

// ModifyOrder changes the price and quantity of a resting order, wherever it
// rests, and returns the trades the change produced.
func (engine *Engine) ModifyOrder(id string, price decimal.Decimal, quantity uint64) ([]common.Trade, error) {
	if err := validateTerms(price, quantity); err != nil {
		return nil, err
	}
	book, ok := engine.locate(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	trades, err := book.ModifyOrder(id, price, quantity)
	if err != nil {
		return nil, fmt.Errorf("modify %s: %w", id, err)
	}
	return trades, nil
}

// CancelOrder removes a resting order, wherever it rests, and returns it.
func (engine *Engine) CancelOrder(id string) (common.Order, error) {
	book, ok := engine.locate(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order, ok := book.CancelOrder(id)
	if !ok {
		return common.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return order, nil
}

// Order returns a copy of a resting order, wherever it rests.
func (engine *Engine) Order(id string) (common.Order, bool) {
	book, ok := engine.locate(id)
	if !ok {
		return common.Order{}, false
	}
	return book.Order(id)
}

// AllOrders returns every resting order across all books.
func (engine *Engine) AllOrders() []common.Order {
	var orders []common.Order
	for _, book := range engine.allBooks() {
		orders = append(orders, book.AllOrders()...)
	}
	return orders
}

// BookSnapshot copies both sides of a symbol's book.
func (engine *Engine) BookSnapshot(symbol string) (BookView, error) {
	book, ok := engine.lookupBook(symbol)
	if !ok {
		return BookView{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return book.View(), nil
}

// Depth aggregates a symbol's book into price levels.
func (engine *Engine) Depth(symbol string) (bids, asks []PriceLevel, err error) {
	book, ok := engine.lookupBook(symbol)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	bids, asks = book.Depth()
	return bids, asks, nil
}

// Symbols lists every symbol that has a book, sorted.
func (engine *Engine) Symbols() []string {
	engine.booksLock.RLock()
	defer engine.booksLock.RUnlock()

	symbols := make([]string, 0, len(engine.books))
	for symbol := range engine.books {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}

func (engine *Engine) lookupBook(symbol string) (*OrderBook, bool) {
	engine.booksLock.RLock()
	defer engine.booksLock.RUnlock()

	book, ok := engine.books[symbol]
	return book, ok
}

func (engine *Engine) bookFor(symbol string) *OrderBook {
	if book, ok := engine.lookupBook(symbol); ok {
		return book
	}

	engine.booksLock.Lock()
	defer engine.booksLock.Unlock()

	// Another caller may have created it between the two locks.
	if book, ok := engine.books[symbol]; ok {
		return book
	}
	book := newOrderBook(symbol, engine.settings)
	book.onRemove = engine.release
	engine.books[symbol] = book
	return book
}

func (engine *Engine) allBooks() []*OrderBook {
	engine.booksLock.RLock()
	defer engine.booksLock.RUnlock()

	books := make([]*OrderBook, 0, len(engine.books))
	for _, book := range engine.books {
		books = append(books, book)
	}
	return books
}

func (engine *Engine) locate(id string) (*OrderBook, bool) {
	engine.indexLock.Lock()
	symbol, ok := engine.index[id]
	engine.indexLock.Unlock()
	if !ok {
		return nil, false
	}
	return engine.lookupBook(symbol)
}

func (engine *Engine) reserve(id, symbol string) bool {
	engine.indexLock.Lock()
	defer engine.indexLock.Unlock()

	if _, ok := engine.index[id]; ok {
		return false
	}
	engine.index[id] = symbol
	return true
}

func (engine *Engine) release(id string) {
	engine.indexLock.Lock()
	defer engine.indexLock.Unlock()

	delete(engine.index, id)
}
