package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/store"
)

// DiscardedOrder is an order removed from the book during a cycle without
// being filled. Reason is a domain sentinel error.
type DiscardedOrder struct {
	Order  domain.Order
	Reason error
}

// CycleResult is the outcome of one matching cycle.
type CycleResult struct {
	Prices       PriceSnapshot
	Transactions []domain.Transaction // buys first, then sells, each FIFO
	Discarded    []DiscardedOrder
}

// Portfolio is a consistent view of an account and its pending orders.
type Portfolio struct {
	Account      domain.AccountSnapshot
	PendingBuys  []domain.Order
	PendingSells []domain.Order
}

// Matcher runs matching cycles for a single account. It owns that
// account's OrderBook and Ledger; submissions and cycles are serialized by
// a per-matcher lock so admission and settlement never interleave.
type Matcher struct {
	mu      sync.Mutex
	feed    PriceFeed
	book    *OrderBook
	ledger  *store.Ledger
	account *domain.Account
	now     func() time.Time
}

// NewMatcher creates a Matcher with an empty book. No account is bound.
func NewMatcher(feed PriceFeed, ledger *store.Ledger) *Matcher {
	return &Matcher{
		feed:   feed,
		book:   NewOrderBook(),
		ledger: ledger,
		now:    time.Now,
	}
}

// Bind attaches the account that orders are checked and settled against.
func (m *Matcher) Bind(acct *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = acct
}

// Submit admits an order into the book. The instrument must have a price
// in the current snapshot so that no order can ever fill at zero.
func (m *Matcher) Submit(order *domain.Order) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return nil, domain.ErrNoActiveSession
	}
	if _, err := m.feed.Snapshot().Price(order.Instrument); err != nil {
		return nil, err
	}
	return m.book.Submit(order, m.account)
}

// RunCycle executes one matching cycle:
//
//  1. refresh the price feed;
//  2. drain the buy side while the earliest order is eligible;
//  3. drain the sell side the same way;
//  4. append the executed transactions to the ledger.
//
// Each side stops at the first ineligible order; later orders are not
// examined even if they would be eligible. Every eligible order is
// re-validated against the account right before settlement and discarded
// if the account no longer covers it.
func (m *Matcher) RunCycle() (*CycleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return nil, domain.ErrNoActiveSession
	}

	result := &CycleResult{
		Prices:       m.feed.Refresh(),
		Transactions: []domain.Transaction{},
	}
	m.drain(domain.OrderSideBuy, result)
	m.drain(domain.OrderSideSell, result)

	m.ledger.Append(result.Transactions...)
	return result, nil
}

func (m *Matcher) drain(side domain.OrderSide, result *CycleResult) {
	executedAt := m.now()

	for {
		order, ok := m.book.PeekNext(side)
		if !ok {
			return
		}

		price, err := result.Prices.Price(order.Instrument)
		if err != nil {
			// No price means eligibility is undecidable; drop rather than block.
			m.book.PopNext(side)
			result.Discarded = append(result.Discarded, DiscardedOrder{Order: *order, Reason: err})
			continue
		}

		if !order.EligibleAt(price) {
			return
		}
		m.book.PopNext(side)

		if err := m.settle(order, price); err != nil {
			result.Discarded = append(result.Discarded, DiscardedOrder{Order: *order, Reason: err})
			continue
		}

		result.Transactions = append(result.Transactions, domain.Transaction{
			TransactionID:  uuid.New().String(),
			Owner:          m.account.Owner,
			Instrument:     order.Instrument,
			Side:           order.Side,
			Kind:           order.Kind,
			Quantity:       order.Quantity,
			ExecutionPrice: price,
			Seq:            order.Seq,
			ExecutedAt:     executedAt,
		})
	}
}

// settle applies a fill at price to the bound account. A buy whose
// notional overflows int64 can never be covered; a sell whose proceeds
// would overflow the balance is refused without touching holdings.
func (m *Matcher) settle(order *domain.Order, price int64) error {
	notional, ok := domain.MulCents(price, order.Quantity)
	if order.Side == domain.OrderSideBuy {
		if !ok || !m.account.CanAddShares(order.Instrument, order.Quantity) {
			return domain.ErrInsufficientFunds
		}
		if !m.account.TryDebit(notional) {
			return domain.ErrInsufficientFunds
		}
		m.account.AddShares(order.Instrument, order.Quantity)
		return nil
	}
	if !m.account.CanSell(order.Instrument, order.Quantity) {
		return domain.ErrInsufficientShares
	}
	if !ok {
		return domain.ErrAmountOverflow
	}
	if _, fits := domain.AddCents(m.account.CashBalance, notional); !fits {
		return domain.ErrAmountOverflow
	}
	m.account.TryRemoveShares(order.Instrument, order.Quantity)
	m.account.TryCredit(notional)
	return nil
}

// Portfolio returns the bound account and its pending orders.
func (m *Matcher) Portfolio() (*Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return nil, domain.ErrNoActiveSession
	}
	return &Portfolio{
		Account:      m.account.Snapshot(),
		PendingBuys:  m.book.Pending(domain.OrderSideBuy),
		PendingSells: m.book.Pending(domain.OrderSideSell),
	}, nil
}

// Statement returns the portfolio and the executed transactions read
// under one lock, so both reflect the same point between cycles.
func (m *Matcher) Statement() (*Portfolio, []domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.account == nil {
		return nil, nil, domain.ErrNoActiveSession
	}
	p := &Portfolio{
		Account:      m.account.Snapshot(),
		PendingBuys:  m.book.Pending(domain.OrderSideBuy),
		PendingSells: m.book.Pending(domain.OrderSideSell),
	}
	return p, m.ledger.History(), nil
}

// History returns every transaction this matcher has executed.
func (m *Matcher) History() []domain.Transaction {
	return m.ledger.History()
}
