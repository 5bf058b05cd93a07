package handler

import (
	"net/http"

	"github.com/efreitasn/tradesim/internal/service"
)

// backtestRequest is the JSON body of POST /backtest.
type backtestRequest struct {
	Instrument string    `json:"instrument"`
	Prices     []float64 `json:"prices"`
	Period     int       `json:"period"`
}

type backtestResponse struct {
	Instrument     string   `json:"instrument"`
	Points         int      `json:"points"`
	TotalGain      float64  `json:"total_gain"`
	Period         int      `json:"period"`
	SMA            float64  `json:"sma"`
	RSI            *float64 `json:"rsi"`
	MACD           *float64 `json:"macd"`
	MACDSignal     *float64 `json:"macd_signal"`
	StrategyGain   float64  `json:"strategy_gain"`
	StrategyTrades int      `json:"strategy_trades"`
}

// Backtest handles POST /backtest.
func Backtest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := service.Backtest(service.BacktestRequest{
		Instrument: req.Instrument,
		Prices:     req.Prices,
		Period:     req.Period,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := backtestResponse{
		Instrument:     res.Instrument,
		Points:         res.Points,
		TotalGain:      res.TotalGain,
		Period:         res.Period,
		SMA:            res.LastSMA,
		StrategyGain:   res.StrategyGain,
		StrategyTrades: res.StrategyTrades,
	}
	if res.HasRSI {
		resp.RSI = &res.RSI
	}
	if res.HasMACD {
		resp.MACD = &res.MACD
		resp.MACDSignal = &res.MACDSignal
	}
	WriteJSON(w, http.StatusOK, resp)
}
