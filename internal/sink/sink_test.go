package sink

import (
	"time"

	"github.com/efreitasn/tradesim/internal/domain"
)

func newTestTx(owner, instrument string, side domain.OrderSide, seq uint64) domain.Transaction {
	return domain.Transaction{
		TransactionID:  owner + "-" + instrument,
		Owner:          owner,
		Instrument:     instrument,
		Side:           side,
		Kind:           domain.OrderKindMarket,
		Quantity:       10,
		ExecutionPrice: 14850,
		Seq:            seq,
		ExecutedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}
