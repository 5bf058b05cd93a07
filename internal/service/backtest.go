package service

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/efreitasn/tradesim/internal/domain"
)

const (
	defaultBacktestPeriod = 5
	macdMinPoints         = 35 // slow(26) + signal(9)
)

// BacktestRequest is a historical price series for one instrument, in
// dollars, oldest first.
type BacktestRequest struct {
	Instrument string
	Prices     []float64
	Period     int // moving-average and RSI period; 0 means the default
}

// BacktestResult holds the outcome of a backtest. Gains are in dollars.
type BacktestResult struct {
	Instrument string
	Points     int
	TotalGain  float64 // sum of consecutive price differences
	Period     int
	LastSMA    float64
	RSI        float64 // only when HasRSI
	HasRSI     bool
	MACD       float64 // only when HasMACD
	MACDSignal float64
	HasMACD    bool

	// Moving-average crossover: long while price is above its SMA.
	StrategyGain   float64
	StrategyTrades int
}

// Backtest evaluates a price series. It needs at least two prices.
func Backtest(req BacktestRequest) (*BacktestResult, error) {
	if !domain.ValidInstrument(req.Instrument) {
		return nil, &domain.ValidationError{Message: "instrument must be an upper-case ticker symbol"}
	}
	if len(req.Prices) < 2 {
		return nil, domain.ErrNotEnoughData
	}
	for _, p := range req.Prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return nil, &domain.ValidationError{Message: "prices must be positive numbers"}
		}
	}
	if req.Period < 0 || req.Period == 1 {
		return nil, &domain.ValidationError{Message: "period must be >= 2"}
	}

	period := req.Period
	if period == 0 {
		period = defaultBacktestPeriod
	}
	if period > len(req.Prices) {
		period = len(req.Prices)
	}

	res := &BacktestResult{
		Instrument: req.Instrument,
		Points:     len(req.Prices),
		Period:     period,
	}

	var gain float64
	for i := 1; i < len(req.Prices); i++ {
		gain += req.Prices[i] - req.Prices[i-1]
	}
	res.TotalGain = roundCents(gain)

	sma := talib.Sma(req.Prices, period)
	res.LastSMA = roundCents(sma[len(sma)-1])
	res.StrategyGain, res.StrategyTrades = smaCrossover(req.Prices, sma, period)

	if len(req.Prices) > period {
		rsi := talib.Rsi(req.Prices, period)
		res.RSI = math.Round(rsi[len(rsi)-1]*100) / 100
		res.HasRSI = true
	}
	if len(req.Prices) >= macdMinPoints {
		macd, signal, _ := talib.Macd(req.Prices, 12, 26, 9)
		res.MACD = math.Round(macd[len(macd)-1]*10000) / 10000
		res.MACDSignal = math.Round(signal[len(signal)-1]*10000) / 10000
		res.HasMACD = true
	}
	return res, nil
}

// smaCrossover enters when the price closes above its SMA and exits when
// it closes at or below it. An open position is closed at the last price.
func smaCrossover(prices, sma []float64, period int) (float64, int) {
	var (
		gain   float64
		trades int
		entry  float64
		long   bool
	)
	for i := period - 1; i < len(prices); i++ {
		switch {
		case !long && prices[i] > sma[i]:
			entry, long = prices[i], true
		case long && prices[i] <= sma[i]:
			gain += prices[i] - entry
			trades++
			long = false
		}
	}
	if long {
		gain += prices[len(prices)-1] - entry
		trades++
	}
	return roundCents(gain), trades
}

func roundCents(f float64) float64 {
	return math.Round(f*100) / 100
}
