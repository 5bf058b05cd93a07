package domain

import (
	"fmt"
	"time"
)

// OrderKind distinguishes market, limit and stop orders.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
	// OrderKindStop is accepted but carries no trigger logic: it never
	// satisfies the eligibility rule, so a queued stop blocks its side.
	OrderKindStop OrderKind = "stop"
)

// ParseOrderKind maps user input to an OrderKind. Empty input means market.
func ParseOrderKind(s string) (OrderKind, error) {
	switch OrderKind(s) {
	case "", OrderKindMarket:
		return OrderKindMarket, nil
	case OrderKindLimit, OrderKindStop:
		return OrderKind(s), nil
	}
	return "", &ValidationError{
		Message: fmt.Sprintf("Unknown order type: %s. Must be one of: market, limit, stop", s),
	}
}

// OrderSide indicates whether an order buys or sells.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a buy or sell instruction queued against one account.
// Everything except its queue position is fixed once submitted.
type Order struct {
	Seq         uint64 // assigned at admission, strictly increasing per book
	Side        OrderSide
	Kind        OrderKind
	Instrument  string
	Quantity    int64
	LimitPrice  int64 // cents; admission gate and eligibility bound, never the fill price
	SubmittedAt time.Time
}

// Cost returns the cash the order needs at its limit price. ok is false
// when limit × quantity overflows.
func (o *Order) Cost() (cost int64, ok bool) {
	return MulCents(o.LimitPrice, o.Quantity)
}

// EligibleAt reports whether the order may execute at the given market
// price. Market orders are always eligible; limit buys need
// limit >= price, limit sells need limit <= price. Stop orders never are.
func (o *Order) EligibleAt(price int64) bool {
	switch o.Kind {
	case OrderKindMarket:
		return true
	case OrderKindLimit:
		if o.Side == OrderSideBuy {
			return o.LimitPrice >= price
		}
		return o.LimitPrice <= price
	}
	return false
}

func (o *Order) String() string {
	return fmt.Sprintf("#%d %s %s %d %s @ %s", o.Seq, o.Kind, o.Side, o.Quantity, o.Instrument, FormatCents(o.LimitPrice))
}
