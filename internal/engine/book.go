package engine

import (
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/tradesim/internal/domain"
)

// seqLess orders a side by submission sequence, earliest first. Price is
// deliberately not part of the ordering: each side is strictly FIFO.
func seqLess(a, b *domain.Order) bool {
	return a.Seq < b.Seq
}

// OrderBook holds the pending buy and sell orders of one account in two
// B-trees keyed by sequence number. It is not safe for concurrent use; the
// owning Matcher serializes access.
type OrderBook struct {
	lastSeq uint64
	buys    *btree.BTreeG[*domain.Order]
	sells   *btree.BTreeG[*domain.Order]
	now     func() time.Time
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	const degree = 32
	return &OrderBook{
		buys:  btree.NewG[*domain.Order](degree, seqLess),
		sells: btree.NewG[*domain.Order](degree, seqLess),
		now:   time.Now,
	}
}

// Submit validates the order, runs the admission check against acct and,
// on success, assigns the next sequence number and queues the order.
//
// Admission is a point-in-time check: buys need cash >= quantity × limit,
// sells need holdings >= quantity. Nothing is reserved; the matcher
// re-checks the account before every fill. Rejected orders are not queued
// and do not consume a sequence number.
func (ob *OrderBook) Submit(order *domain.Order, acct *domain.Account) (*domain.Order, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	switch order.Side {
	case domain.OrderSideBuy:
		// A cost that overflows int64 exceeds any balance.
		cost, ok := order.Cost()
		if !ok || !acct.CanBuy(cost) {
			return nil, domain.ErrInsufficientFunds
		}
	case domain.OrderSideSell:
		if !acct.CanSell(order.Instrument, order.Quantity) {
			return nil, domain.ErrInsufficientShares
		}
	}

	ob.lastSeq++
	order.Seq = ob.lastSeq
	order.SubmittedAt = ob.now()
	ob.side(order.Side).ReplaceOrInsert(order)
	return order, nil
}

// PeekNext returns the earliest-submitted order on side without removing it.
func (ob *OrderBook) PeekNext(side domain.OrderSide) (*domain.Order, bool) {
	return ob.side(side).Min()
}

// PopNext removes and returns the earliest-submitted order on side.
func (ob *OrderBook) PopNext(side domain.OrderSide) (*domain.Order, bool) {
	return ob.side(side).DeleteMin()
}

// Len returns the number of queued orders on side.
func (ob *OrderBook) Len(side domain.OrderSide) int {
	return ob.side(side).Len()
}

// Pending returns copies of the queued orders on side in matching order.
func (ob *OrderBook) Pending(side domain.OrderSide) []domain.Order {
	tree := ob.side(side)
	orders := make([]domain.Order, 0, tree.Len())
	tree.Ascend(func(o *domain.Order) bool {
		orders = append(orders, *o)
		return true
	})
	return orders
}

func (ob *OrderBook) side(side domain.OrderSide) *btree.BTreeG[*domain.Order] {
	if side == domain.OrderSideSell {
		return ob.sells
	}
	return ob.buys
}

func validateOrder(o *domain.Order) error {
	if o.Side != domain.OrderSideBuy && o.Side != domain.OrderSideSell {
		return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	switch o.Kind {
	case domain.OrderKindMarket, domain.OrderKindLimit, domain.OrderKindStop:
	default:
		return &domain.ValidationError{Message: "kind must be one of: market, limit, stop"}
	}
	if !domain.ValidInstrument(o.Instrument) {
		return &domain.ValidationError{Message: "instrument must be an upper-case ticker symbol"}
	}
	if o.Quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if o.LimitPrice < 0 {
		return &domain.ValidationError{Message: "price must be >= 0"}
	}
	return nil
}
