package domain

import "time"

// Transaction records one executed order. It is created at execution time
// and never modified afterwards.
type Transaction struct {
	TransactionID  string
	Owner          string
	Instrument     string
	Side           OrderSide
	Kind           OrderKind
	Quantity       int64
	ExecutionPrice int64  // cents, the market price at execution
	Seq            uint64 // sequence number of the executed order
	ExecutedAt     time.Time
}

// Notional returns executionPrice × quantity in cents. Settlement only
// records transactions whose notional fits in an int64.
func (t Transaction) Notional() int64 {
	n, _ := MulCents(t.ExecutionPrice, t.Quantity)
	return n
}
