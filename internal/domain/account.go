package domain

import (
	"math"
	"sort"
	"time"
)

// Account holds one user's cash and share counts. It is not safe for
// concurrent use; the matcher that owns it serializes access.
type Account struct {
	Owner       string
	InitialCash int64            // cents at creation, used for performance figures
	CashBalance int64            // cents
	Holdings    map[string]int64 // instrument → shares
	CreatedAt   time.Time
}

// NewAccount creates an account with the given starting cash and no holdings.
func NewAccount(owner string, cash int64) *Account {
	return &Account{
		Owner:       owner,
		InitialCash: cash,
		CashBalance: cash,
		Holdings:    make(map[string]int64),
		CreatedAt:   time.Now(),
	}
}

// CanBuy reports whether the cash balance covers cost. A negative cost
// never passes.
func (a *Account) CanBuy(cost int64) bool {
	return cost >= 0 && a.CashBalance >= cost
}

// CanSell reports whether the account holds at least quantity shares.
func (a *Account) CanSell(instrument string, quantity int64) bool {
	return a.Holdings[instrument] >= quantity
}

// TryDebit removes amount from the cash balance if it is covered.
func (a *Account) TryDebit(amount int64) bool {
	if !a.CanBuy(amount) {
		return false
	}
	a.CashBalance -= amount
	return true
}

// TryCredit adds amount to the cash balance unless the sum would
// overflow or amount is negative.
func (a *Account) TryCredit(amount int64) bool {
	sum, ok := AddCents(a.CashBalance, amount)
	if !ok {
		return false
	}
	a.CashBalance = sum
	return true
}

// CanAddShares reports whether quantity more shares of instrument can be
// held without overflowing the count.
func (a *Account) CanAddShares(instrument string, quantity int64) bool {
	return quantity >= 0 && a.Holdings[instrument] <= math.MaxInt64-quantity
}

// AddShares increases the holding for instrument.
func (a *Account) AddShares(instrument string, quantity int64) {
	if a.Holdings == nil {
		a.Holdings = make(map[string]int64)
	}
	a.Holdings[instrument] += quantity
}

// TryRemoveShares decreases the holding if enough shares are held.
// Holdings that reach zero are dropped from the map.
func (a *Account) TryRemoveShares(instrument string, quantity int64) bool {
	if !a.CanSell(instrument, quantity) {
		return false
	}
	a.Holdings[instrument] -= quantity
	if a.Holdings[instrument] == 0 {
		delete(a.Holdings, instrument)
	}
	return true
}

// Holding is one instrument position in an AccountSnapshot.
type Holding struct {
	Instrument string
	Quantity   int64
}

// AccountSnapshot is a detached, read-only copy of an Account.
type AccountSnapshot struct {
	Owner       string
	InitialCash int64
	CashBalance int64
	Holdings    []Holding // sorted by instrument
}

// Snapshot copies the account state.
func (a *Account) Snapshot() AccountSnapshot {
	holdings := make([]Holding, 0, len(a.Holdings))
	for instrument, qty := range a.Holdings {
		holdings = append(holdings, Holding{Instrument: instrument, Quantity: qty})
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Instrument < holdings[j].Instrument
	})
	return AccountSnapshot{
		Owner:       a.Owner,
		InitialCash: a.InitialCash,
		CashBalance: a.CashBalance,
		Holdings:    holdings,
	}
}
