package service

import (
	"math"
	"sort"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/engine"
)

// InstrumentReport summarizes one instrument's position and trading
// activity. Money fields are cents.
type InstrumentReport struct {
	Instrument      string
	Quantity        int64
	Price           int64 // last snapshot price; 0 if the instrument has none
	MarketValue     int64
	BoughtQuantity  int64
	BoughtNotional  int64
	SoldQuantity    int64
	SoldNotional    int64
	AverageBuyPrice int64
}

// Report is a performance summary of one account valued at the last
// price snapshot.
type Report struct {
	Owner         string
	InitialCash   int64
	CashBalance   int64
	HoldingsValue int64
	Equity        int64
	ProfitLoss    int64
	Transactions  int
	PricesVersion uint64
	Instruments   []InstrumentReport
}

// Report builds the session's performance report.
func (s *TradingService) Report(sess *Session) (*Report, error) {
	m, err := s.matcherFor(sess)
	if err != nil {
		return nil, err
	}
	p, txs, err := m.Statement()
	if err != nil {
		return nil, err
	}
	return buildReport(p.Account, txs, s.market.Snapshot()), nil
}

func buildReport(acct domain.AccountSnapshot, txs []domain.Transaction, prices engine.PriceSnapshot) *Report {
	byInstrument := make(map[string]*InstrumentReport)
	entry := func(instrument string) *InstrumentReport {
		r, ok := byInstrument[instrument]
		if !ok {
			r = &InstrumentReport{Instrument: instrument}
			byInstrument[instrument] = r
		}
		return r
	}

	for _, h := range acct.Holdings {
		entry(h.Instrument).Quantity = h.Quantity
	}
	for _, tx := range txs {
		r := entry(tx.Instrument)
		if tx.Side == domain.OrderSideBuy {
			r.BoughtQuantity += tx.Quantity
			r.BoughtNotional += tx.Notional()
		} else {
			r.SoldQuantity += tx.Quantity
			r.SoldNotional += tx.Notional()
		}
	}

	rep := &Report{
		Owner:         acct.Owner,
		InitialCash:   acct.InitialCash,
		CashBalance:   acct.CashBalance,
		Transactions:  len(txs),
		PricesVersion: prices.Version,
		Instruments:   make([]InstrumentReport, 0, len(byInstrument)),
	}
	for _, r := range byInstrument {
		if price, err := prices.Price(r.Instrument); err == nil {
			r.Price = price
			if mv, ok := domain.MulCents(price, r.Quantity); ok {
				r.MarketValue = mv
			} else {
				r.MarketValue = math.MaxInt64
			}
		}
		if r.BoughtQuantity > 0 {
			r.AverageBuyPrice = r.BoughtNotional / r.BoughtQuantity
		}
		rep.HoldingsValue += r.MarketValue
		rep.Instruments = append(rep.Instruments, *r)
	}
	sort.Slice(rep.Instruments, func(i, j int) bool {
		return rep.Instruments[i].Instrument < rep.Instruments[j].Instrument
	})

	rep.Equity = rep.CashBalance + rep.HoldingsValue
	rep.ProfitLoss = rep.Equity - rep.InitialCash
	return rep
}
