package engine

import (
	"errors"
	"fmt"

	"fenrir/internal/common"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
	ErrUnknownSymbol    = errors.New("unknown symbol")
	ErrInvalidOrder     = errors.New("invalid order")
)

// ModifyPolicy decides which creation timestamp a modified order carries.
type ModifyPolicy int

const (
	// PreserveTimePriority keeps the original creation timestamp, so a
	// modified order keeps its place in the time queue of its new price.
	PreserveTimePriority ModifyPolicy = iota
	// ResetTimePriority stamps the replacement with a fresh timestamp, which
	// puts it behind every order already resting at its new price.
	ResetTimePriority
)

func (p ModifyPolicy) String() string {
	switch p {
	case PreserveTimePriority:
		return "preserve"
	case ResetTimePriority:
		return "reset"
	default:
		return "unknown"
	}
}

// ParseModifyPolicy maps a configuration value onto a ModifyPolicy. The
// empty string selects the default.
func ParseModifyPolicy(s string) (ModifyPolicy, error) {
	switch s {
	case "", "preserve":
		return PreserveTimePriority, nil
	case "reset":
		return ResetTimePriority, nil
	}
	return PreserveTimePriority, fmt.Errorf("unknown modify policy %q", s)
}

// BookView is a point-in-time copy of both sides of a book, best first.
type BookView struct {
	Symbol string
	Bids   []common.Order
	Asks   []common.Order
}

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity uint64
	Orders   int
}

func validateOrder(order common.Order) error {
	switch {
	case order.ID == "":
		return fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	case order.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	case !order.Side.Valid():
		return fmt.Errorf("%w: %w", ErrInvalidOrder, common.ErrInvalidSide)
	}
	return validateTerms(order.Price, order.Quantity)
}

func validateTerms(price decimal.Decimal, quantity uint64) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	if quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	return nil
}
