package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/store"
)

// newTestMatcher returns a matcher over a static market with every symbol
// at price, bound to a fresh account holding cash cents.
func newTestMatcher(price, cash int64, symbols ...string) (*Matcher, *Market, *domain.Account) {
	if len(symbols) == 0 {
		symbols = []string{"AAPL", "GOOGL", "MSFT"}
	}
	market := NewMarket(symbols, price, Static{})
	m := NewMatcher(market, store.NewLedger())
	acct := domain.NewAccount("alice", cash)
	m.Bind(acct)
	return m, market, acct
}

func mustSubmit(t *testing.T, m *Matcher, o *domain.Order) *domain.Order {
	t.Helper()
	got, err := m.Submit(o)
	if err != nil {
		t.Fatalf("submit %+v: %v", o, err)
	}
	return got
}

func mustCycle(t *testing.T, m *Matcher) *CycleResult {
	t.Helper()
	res, err := m.RunCycle()
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return res
}

func TestMatcher_MarketBuyFillsAtRefreshPrice(t *testing.T) {
	market := NewMarket([]string{"AAPL", "GOOGL", "MSFT"}, 10000, NewRandomWalk(500, 3))
	m := NewMatcher(market, store.NewLedger())
	acct := domain.NewAccount("alice", 1000000) // $10,000
	m.Bind(acct)

	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 10, 0))
	res := mustCycle(t, m)

	price, err := res.Prices.Price("AAPL")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	tx := res.Transactions[0]
	if tx.ExecutionPrice != price || tx.Quantity != 10 || tx.Side != domain.OrderSideBuy {
		t.Fatalf("transaction = %+v, want 10 AAPL bought at %d", tx, price)
	}
	if acct.Holdings["AAPL"] != 10 {
		t.Errorf("holdings[AAPL] = %d, want 10", acct.Holdings["AAPL"])
	}
	if want := 1000000 - 10*price; acct.CashBalance != want {
		t.Errorf("CashBalance = %d, want %d", acct.CashBalance, want)
	}
}

func TestMatcher_LimitSellWaitsForPrice(t *testing.T) {
	m, market, acct := newTestMatcher(15000, 0)
	acct.AddShares("MSFT", 5)

	mustSubmit(t, m, newOrder(domain.OrderSideSell, domain.OrderKindLimit, "MSFT", 5, 20000))

	res := mustCycle(t, m)
	if len(res.Transactions) != 0 {
		t.Fatalf("limit sell at 200 executed at 150: %+v", res.Transactions)
	}
	p, _ := m.Portfolio()
	if len(p.PendingSells) != 1 {
		t.Fatalf("expected the sell to stay queued, pending=%d", len(p.PendingSells))
	}

	if err := market.SetPrice("MSFT", 21000); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	res = mustCycle(t, m)
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction at 210, got %d", len(res.Transactions))
	}
	if res.Transactions[0].ExecutionPrice != 21000 {
		t.Errorf("ExecutionPrice = %d, want 21000 (market, not limit)", res.Transactions[0].ExecutionPrice)
	}
	if acct.CashBalance != 5*21000 {
		t.Errorf("CashBalance = %d, want %d", acct.CashBalance, 5*21000)
	}
	if acct.Holdings["MSFT"] != 0 {
		t.Errorf("holdings[MSFT] = %d, want 0", acct.Holdings["MSFT"])
	}
}

func TestMatcher_SellBeyondHoldingsRejectedAtAdmission(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 0)
	acct.AddShares("AAPL", 3)

	_, err := m.Submit(newOrder(domain.OrderSideSell, domain.OrderKindMarket, "AAPL", 4, 0))
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("error = %v, want ErrInsufficientShares", err)
	}
	p, _ := m.Portfolio()
	if len(p.PendingSells) != 0 {
		t.Fatal("rejected order entered the queue")
	}
}

func TestMatcher_BuyDrainStopsAtFirstIneligible(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 10000000)

	first := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 1, 0))
	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindLimit, "AAPL", 1, 9000)) // below price
	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "MSFT", 1, 0))   // eligible but blocked

	res := mustCycle(t, m)
	if len(res.Transactions) != 1 || res.Transactions[0].Seq != first.Seq {
		t.Fatalf("transactions = %+v, want only seq %d", res.Transactions, first.Seq)
	}
	if acct.Holdings["MSFT"] != 0 {
		t.Fatal("order behind an ineligible order was executed")
	}

	p, _ := m.Portfolio()
	if len(p.PendingBuys) != 2 {
		t.Fatalf("pending buys = %d, want 2", len(p.PendingBuys))
	}
}

func TestMatcher_IneligibleOrderIsIdempotentNoop(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 1000000)
	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindLimit, "AAPL", 1, 5000))

	for i := 0; i < 5; i++ {
		res := mustCycle(t, m)
		if len(res.Transactions) != 0 {
			t.Fatalf("cycle %d executed %+v", i, res.Transactions)
		}
	}
	if acct.CashBalance != 1000000 {
		t.Errorf("CashBalance = %d, want unchanged", acct.CashBalance)
	}
	p, _ := m.Portfolio()
	if len(p.PendingBuys) != 1 {
		t.Fatalf("pending buys = %d, want 1", len(p.PendingBuys))
	}
	if len(m.History()) != 0 {
		t.Fatal("ledger should be empty")
	}
}

func TestMatcher_BuysSettleBeforeSells(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 1000000)
	acct.AddShares("MSFT", 2)

	sell := mustSubmit(t, m, newOrder(domain.OrderSideSell, domain.OrderKindMarket, "MSFT", 2, 0))
	buy := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 3, 0))

	res := mustCycle(t, m)
	if len(res.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(res.Transactions))
	}
	if res.Transactions[0].Seq != buy.Seq || res.Transactions[1].Seq != sell.Seq {
		t.Fatalf("order = [%d %d], want buy %d then sell %d",
			res.Transactions[0].Seq, res.Transactions[1].Seq, buy.Seq, sell.Seq)
	}

	hist := m.History()
	if len(hist) != 2 || hist[0].Side != domain.OrderSideBuy || hist[1].Side != domain.OrderSideSell {
		t.Fatalf("ledger = %+v, want buy then sell", hist)
	}
}

func TestMatcher_RevalidatesFundsBeforeFill(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 100000) // $1000, price $100

	// Both pass admission at a $1 limit, but only one fill is affordable.
	first := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 10, 100))
	second := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 10, 100))
	third := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "GOOGL", 1, 0))

	res := mustCycle(t, m)
	if len(res.Transactions) != 1 || res.Transactions[0].Seq != first.Seq {
		t.Fatalf("transactions = %+v, want only seq %d", res.Transactions, first.Seq)
	}
	if len(res.Discarded) != 2 {
		t.Fatalf("discarded = %+v, want seq %d and %d", res.Discarded, second.Seq, third.Seq)
	}
	for _, d := range res.Discarded {
		if !errors.Is(d.Reason, domain.ErrInsufficientFunds) {
			t.Errorf("discard reason for seq %d = %v, want ErrInsufficientFunds", d.Order.Seq, d.Reason)
		}
	}
	if acct.CashBalance != 0 || acct.Holdings["AAPL"] != 10 {
		t.Errorf("cash=%d holdings=%d, want 0 and 10", acct.CashBalance, acct.Holdings["AAPL"])
	}

	p, _ := m.Portfolio()
	if len(p.PendingBuys) != 0 {
		t.Fatal("discarded orders must not be re-queued")
	}
}

func TestMatcher_RevalidatesSharesBeforeFill(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 0)
	acct.AddShares("AAPL", 5)

	mustSubmit(t, m, newOrder(domain.OrderSideSell, domain.OrderKindMarket, "AAPL", 5, 0))
	second := mustSubmit(t, m, newOrder(domain.OrderSideSell, domain.OrderKindMarket, "AAPL", 5, 0))

	res := mustCycle(t, m)
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	if len(res.Discarded) != 1 || res.Discarded[0].Order.Seq != second.Seq ||
		!errors.Is(res.Discarded[0].Reason, domain.ErrInsufficientShares) {
		t.Fatalf("discarded = %+v", res.Discarded)
	}
	if acct.CashBalance != 50000 {
		t.Errorf("CashBalance = %d, want 50000", acct.CashBalance)
	}
}

func TestMatcher_OverflowingMarketBuyDiscarded(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 1000000) // $10,000, price $100

	// A market buy at limit 0 passes admission; its notional at $100
	// wraps negative in unchecked int64 arithmetic.
	huge := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 922337203685478, 0))
	small := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 1, 0))

	res := mustCycle(t, m)
	if len(res.Discarded) != 1 || res.Discarded[0].Order.Seq != huge.Seq ||
		!errors.Is(res.Discarded[0].Reason, domain.ErrInsufficientFunds) {
		t.Fatalf("discarded = %+v, want seq %d with ErrInsufficientFunds", res.Discarded, huge.Seq)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].Seq != small.Seq {
		t.Fatalf("transactions = %+v, want only seq %d", res.Transactions, small.Seq)
	}
	if acct.CashBalance != 990000 || acct.Holdings["AAPL"] != 1 {
		t.Errorf("cash=%d holdings=%d, want 990000 and 1", acct.CashBalance, acct.Holdings["AAPL"])
	}
}

func TestMatcher_OverflowingSellProceedsDiscarded(t *testing.T) {
	m, _, acct := newTestMatcher(10000, 1000000)
	acct.AddShares("AAPL", math.MaxInt64/2)

	o := mustSubmit(t, m, newOrder(domain.OrderSideSell, domain.OrderKindMarket, "AAPL", math.MaxInt64/2, 0))
	res := mustCycle(t, m)

	if len(res.Transactions) != 0 {
		t.Fatalf("transactions = %+v, want none", res.Transactions)
	}
	if len(res.Discarded) != 1 || res.Discarded[0].Order.Seq != o.Seq ||
		!errors.Is(res.Discarded[0].Reason, domain.ErrAmountOverflow) {
		t.Fatalf("discarded = %+v, want ErrAmountOverflow", res.Discarded)
	}
	if acct.CashBalance != 1000000 || acct.Holdings["AAPL"] != math.MaxInt64/2 {
		t.Errorf("account changed by a refused sell: cash=%d holdings=%d", acct.CashBalance, acct.Holdings["AAPL"])
	}
}

func TestMatcher_StatementMatchesLedgerDuringCycles(t *testing.T) {
	const initial = 1000000
	m, _, _ := newTestMatcher(10000, initial)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := m.Submit(newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 1, 0)); err != nil {
				return
			}
			if _, err := m.RunCycle(); err != nil {
				return
			}
		}
	}()

	for {
		p, txs, err := m.Statement()
		if err != nil {
			t.Fatalf("Statement: %v", err)
		}
		var spent int64
		for _, tx := range txs {
			spent += tx.Notional()
		}
		if p.Account.CashBalance != initial-spent {
			t.Fatalf("cash %d does not match %d transactions (spent %d)", p.Account.CashBalance, len(txs), spent)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestMatcher_StopOrderBlocksItsSide(t *testing.T) {
	m, _, _ := newTestMatcher(10000, 1000000)

	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindStop, "AAPL", 1, 20000))
	mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 1, 0))

	res := mustCycle(t, m)
	if len(res.Transactions) != 0 {
		t.Fatalf("transactions = %+v, want none behind a stop order", res.Transactions)
	}
}

func TestMatcher_NoActiveSession(t *testing.T) {
	m := NewMatcher(NewMarket([]string{"AAPL"}, 10000, Static{}), store.NewLedger())

	if _, err := m.RunCycle(); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("RunCycle error = %v, want ErrNoActiveSession", err)
	}
	if _, err := m.Submit(newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "AAPL", 1, 0)); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("Submit error = %v, want ErrNoActiveSession", err)
	}
	if _, err := m.Portfolio(); !errors.Is(err, domain.ErrNoActiveSession) {
		t.Errorf("Portfolio error = %v, want ErrNoActiveSession", err)
	}
}

func TestMatcher_UnknownInstrumentRejected(t *testing.T) {
	m, _, _ := newTestMatcher(10000, 1000000)

	_, err := m.Submit(newOrder(domain.OrderSideBuy, domain.OrderKindMarket, "TSLA", 1, 0))
	if !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Fatalf("error = %v, want ErrUnknownInstrument", err)
	}
}

func TestMatcher_TransactionFields(t *testing.T) {
	m, _, _ := newTestMatcher(12345, 1000000)
	o := mustSubmit(t, m, newOrder(domain.OrderSideBuy, domain.OrderKindLimit, "GOOGL", 2, 20000))

	res := mustCycle(t, m)
	if len(res.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(res.Transactions))
	}
	tx := res.Transactions[0]
	if tx.TransactionID == "" {
		t.Error("TransactionID not set")
	}
	if tx.Owner != "alice" || tx.Instrument != "GOOGL" || tx.Kind != domain.OrderKindLimit || tx.Seq != o.Seq {
		t.Errorf("transaction = %+v", tx)
	}
	if tx.ExecutionPrice != 12345 {
		t.Errorf("ExecutionPrice = %d, want 12345 (not the 20000 limit)", tx.ExecutionPrice)
	}
	if tx.Notional() != 24690 {
		t.Errorf("Notional() = %d, want 24690", tx.Notional())
	}
	if tx.ExecutedAt.IsZero() {
		t.Error("ExecutedAt not set")
	}
}
