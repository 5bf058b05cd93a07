// Package sink forwards executed transactions to audit and messaging
// destinations outside the matching engine.
package sink

import (
	"context"
	"time"

	"github.com/efreitasn/tradesim/internal/domain"
)

// Sink receives the transactions of every matching cycle.
type Sink interface {
	Name() string
	Publish(ctx context.Context, txs []domain.Transaction) error
	Close() error
}

// Archive is a sink that can read back what it stored.
type Archive interface {
	History(owner string) ([]domain.Transaction, error)
}

// record is the wire and storage shape of a transaction.
type record struct {
	TransactionID       string  `json:"transaction_id"`
	Owner               string  `json:"owner"`
	Instrument          string  `json:"instrument"`
	Side                string  `json:"side"`
	Kind                string  `json:"kind"`
	Quantity            int64   `json:"quantity"`
	ExecutionPrice      float64 `json:"execution_price"`
	ExecutionPriceCents int64   `json:"execution_price_cents"`
	Seq                 uint64  `json:"seq"`
	ExecutedAt          string  `json:"executed_at"`
}

func toRecord(tx domain.Transaction) record {
	return record{
		TransactionID:       tx.TransactionID,
		Owner:               tx.Owner,
		Instrument:          tx.Instrument,
		Side:                string(tx.Side),
		Kind:                string(tx.Kind),
		Quantity:            tx.Quantity,
		ExecutionPrice:      domain.CentsToDollars(tx.ExecutionPrice),
		ExecutionPriceCents: tx.ExecutionPrice,
		Seq:                 tx.Seq,
		ExecutedAt:          tx.ExecutedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r record) transaction() (domain.Transaction, error) {
	executedAt, err := time.Parse(time.RFC3339Nano, r.ExecutedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	return domain.Transaction{
		TransactionID:  r.TransactionID,
		Owner:          r.Owner,
		Instrument:     r.Instrument,
		Side:           domain.OrderSide(r.Side),
		Kind:           domain.OrderKind(r.Kind),
		Quantity:       r.Quantity,
		ExecutionPrice: r.ExecutionPriceCents,
		Seq:            r.Seq,
		ExecutedAt:     executedAt,
	}, nil
}
