package engine

import (
	"sort"
	"time"

	"github.com/efreitasn/tradesim/internal/domain"
)

// Quote is the price of one instrument in a PriceSnapshot.
type Quote struct {
	Instrument string
	Price      int64 // cents
}

// PriceSnapshot is an immutable view of market prices published by a
// PriceFeed. The underlying map is never written after publication, so a
// snapshot can be shared freely between goroutines.
type PriceSnapshot struct {
	Version uint64
	TakenAt time.Time
	prices  map[string]int64
}

// Price returns the price of instrument in cents, or
// domain.ErrUnknownInstrument if the snapshot does not track it.
func (s PriceSnapshot) Price(instrument string) (int64, error) {
	p, ok := s.prices[instrument]
	if !ok {
		return 0, domain.ErrUnknownInstrument
	}
	return p, nil
}

// Quotes returns every price in the snapshot, sorted by instrument.
func (s PriceSnapshot) Quotes() []Quote {
	quotes := make([]Quote, 0, len(s.prices))
	for instrument, p := range s.prices {
		quotes = append(quotes, Quote{Instrument: instrument, Price: p})
	}
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Instrument < quotes[j].Instrument
	})
	return quotes
}

// Len returns the number of instruments in the snapshot.
func (s PriceSnapshot) Len() int {
	return len(s.prices)
}
