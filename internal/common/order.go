package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a unit of trading intent. ID, Symbol and Side never change once
// the order is created. Quantity is the remaining (unfilled) quantity.
type Order struct {
	ID        string          `json:"id"`        // Caller supplied, unique across the engine
	Symbol    string          `json:"symbol"`    // Instrument the order trades
	Side      Side            `json:"side"`      // Order side
	Price     decimal.Decimal `json:"price"`     // Limit price
	Quantity  uint64          `json:"quantity"`  // Remaining quantity
	CreatedAt time.Time       `json:"createdAt"` // Time priority, stamped by the engine clock
}

// OrderHeader is the column layout of exported order records.
var OrderHeader = []string{"orderId", "symbol", "type", "price", "quantity", "timestamp"}

// Record renders the order in the export layout.
func (order Order) Record() []string {
	return []string{
		order.ID,
		order.Symbol,
		order.Side.String(),
		order.Price.String(),
		strconv.FormatUint(order.Quantity, 10),
		strconv.FormatInt(order.CreatedAt.UnixMilli(), 10),
	}
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ID:        %s
Symbol:    %s
Side:      %v
Price:     %s
Quantity:  %d
CreatedAt: %v`,
		order.ID,
		order.Symbol,
		order.Side,
		order.Price.String(),
		order.Quantity,
		order.CreatedAt.Format(time.RFC3339Nano),
	)
}
