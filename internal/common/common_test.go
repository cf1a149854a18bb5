package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	for input, want := range map[string]Side{"buy": Buy, "BUY": Buy, " Sell ": Sell} {
		side, err := ParseSide(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, side, input)
	}

	_, err := ParseSide("hold")
	assert.ErrorIs(t, err, ErrInvalidSide)

	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.False(t, Side(5).Valid())
	assert.Equal(t, "UNKNOWN", Side(5).String())
}

func TestRecords(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	order := Order{ID: "B1", Symbol: "AAPL", Side: Sell, Price: decimal.RequireFromString("100.50"), Quantity: 7, CreatedAt: at}
	assert.Len(t, order.Record(), len(OrderHeader))
	assert.Equal(t, []string{"B1", "AAPL", "SELL", "100.5", "7", "1700000000123"}, order.Record())

	trade := Trade{ID: "T1", BuyOrderID: "B1", SellOrderID: "S1", Symbol: "AAPL", Price: decimal.NewFromInt(100), Quantity: 3, ExecutedAt: at}
	assert.Len(t, trade.Record(), len(TradeHeader))
	assert.True(t, decimal.NewFromInt(300).Equal(trade.Notional()))
}

func TestSideJSON(t *testing.T) {
	data, err := json.Marshal(Order{Side: Sell})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"side":"SELL"`)

	var order Order
	require.NoError(t, json.Unmarshal([]byte(`{"side":"buy"}`), &order))
	assert.Equal(t, Buy, order.Side)

	assert.Error(t, json.Unmarshal([]byte(`{"side":"sideways"}`), &order))
	_, err = json.Marshal(Order{Side: Side(9)})
	assert.Error(t, err)
}
