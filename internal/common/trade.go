package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one match between a buy and a sell order.
type Trade struct {
	ID          string          `json:"id"`
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    uint64          `json:"quantity"`
	ExecutedAt  time.Time       `json:"executedAt"`
}

// TradeHeader is the column layout of exported trade records.
var TradeHeader = []string{"tradeId", "buyOrderId", "sellOrderId", "symbol", "price", "quantity", "timestamp"}

// Record renders the trade in the export layout.
func (t Trade) Record() []string {
	return []string{
		t.ID,
		t.BuyOrderID,
		t.SellOrderID,
		t.Symbol,
		t.Price.String(),
		strconv.FormatUint(t.Quantity, 10),
		strconv.FormatInt(t.ExecutedAt.UnixMilli(), 10),
	}
}

// Notional is price times quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`ID:          %s
BuyOrderID:  %s
SellOrderID: %s
Symbol:      %s
Price:       %s
Quantity:    %d
ExecutedAt:  %v`,
		t.ID,
		t.BuyOrderID,
		t.SellOrderID,
		t.Symbol,
		t.Price.String(),
		t.Quantity,
		t.ExecutedAt.Format(time.RFC3339Nano),
	)
}
