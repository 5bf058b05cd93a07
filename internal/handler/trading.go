package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/engine"
	"github.com/efreitasn/tradesim/internal/service"
)

// TradingHandler handles the session-scoped trading endpoints.
type TradingHandler struct {
	trading *service.TradingService
}

// NewTradingHandler creates a new TradingHandler.
func NewTradingHandler(trading *service.TradingService) *TradingHandler {
	return &TradingHandler{trading: trading}
}

// submitOrderRequest is the JSON body of POST /sessions/{session_id}/orders.
type submitOrderRequest struct {
	Side       string  `json:"side"`
	Kind       string  `json:"kind"`
	Instrument string  `json:"instrument"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
}

type orderResponse struct {
	Seq         uint64  `json:"seq"`
	Side        string  `json:"side"`
	Kind        string  `json:"kind"`
	Instrument  string  `json:"instrument"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	SubmittedAt string  `json:"submitted_at"`
}

type transactionResponse struct {
	TransactionID  string  `json:"transaction_id"`
	Seq            uint64  `json:"seq"`
	Side           string  `json:"side"`
	Kind           string  `json:"kind"`
	Instrument     string  `json:"instrument"`
	Quantity       int64   `json:"quantity"`
	ExecutionPrice float64 `json:"execution_price"`
	ExecutedAt     string  `json:"executed_at"`
}

type discardedResponse struct {
	Order  orderResponse `json:"order"`
	Reason string        `json:"reason"`
}

type quoteResponse struct {
	Instrument string  `json:"instrument"`
	Price      float64 `json:"price"`
}

type pricesResponse struct {
	Version uint64          `json:"version"`
	TakenAt string          `json:"taken_at"`
	Prices  []quoteResponse `json:"prices"`
}

type cycleResponse struct {
	Prices       pricesResponse        `json:"prices"`
	Transactions []transactionResponse `json:"transactions"`
	Discarded    []discardedResponse   `json:"discarded"`
}

type submitOrderResponse struct {
	Order orderResponse `json:"order"`
	Cycle cycleResponse `json:"cycle"`
}

type holdingResponse struct {
	Instrument string `json:"instrument"`
	Quantity   int64  `json:"quantity"`
}

type portfolioResponse struct {
	Username     string            `json:"username"`
	InitialCash  float64           `json:"initial_cash"`
	CashBalance  float64           `json:"cash_balance"`
	Holdings     []holdingResponse `json:"holdings"`
	PendingBuys  []orderResponse   `json:"pending_buys"`
	PendingSells []orderResponse   `json:"pending_sells"`
}

type instrumentReportResponse struct {
	Instrument      string  `json:"instrument"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price"`
	MarketValue     float64 `json:"market_value"`
	BoughtQuantity  int64   `json:"bought_quantity"`
	BoughtNotional  float64 `json:"bought_notional"`
	SoldQuantity    int64   `json:"sold_quantity"`
	SoldNotional    float64 `json:"sold_notional"`
	AverageBuyPrice float64 `json:"average_buy_price"`
}

type reportResponse struct {
	Username      string                     `json:"username"`
	InitialCash   float64                    `json:"initial_cash"`
	CashBalance   float64                    `json:"cash_balance"`
	HoldingsValue float64                    `json:"holdings_value"`
	Equity        float64                    `json:"equity"`
	ProfitLoss    float64                    `json:"profit_loss"`
	Transactions  int                        `json:"transactions"`
	PricesVersion uint64                     `json:"prices_version"`
	Instruments   []instrumentReportResponse `json:"instruments"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Total        int                   `json:"total"`
}

func (h *TradingHandler) session(r *http.Request) (*service.Session, error) {
	return h.trading.Session(chi.URLParam(r, "session_id"))
}

// SubmitOrder handles POST /sessions/{session_id}/orders. The order is
// queued and one matching cycle runs, as in the command loop.
func (h *TradingHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.trading.SubmitOrder(sess, service.OrderRequest{
		Side:       req.Side,
		Kind:       req.Kind,
		Instrument: req.Instrument,
		Quantity:   req.Quantity,
		Price:      req.Price,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	res, err := h.trading.RunCycle(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		Order: toOrderResponse(*order),
		Cycle: toCycleResponse(res),
	})
}

// RunCycle handles POST /sessions/{session_id}/cycle.
func (h *TradingHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	res, err := h.trading.RunCycle(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCycleResponse(res))
}

// Portfolio handles GET /sessions/{session_id}/portfolio.
func (h *TradingHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := h.trading.Portfolio(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := portfolioResponse{
		Username:     p.Account.Owner,
		InitialCash:  domain.CentsToDollars(p.Account.InitialCash),
		CashBalance:  domain.CentsToDollars(p.Account.CashBalance),
		Holdings:     make([]holdingResponse, 0, len(p.Account.Holdings)),
		PendingBuys:  toOrderResponses(p.PendingBuys),
		PendingSells: toOrderResponses(p.PendingSells),
	}
	for _, hd := range p.Account.Holdings {
		resp.Holdings = append(resp.Holdings, holdingResponse{Instrument: hd.Instrument, Quantity: hd.Quantity})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Report handles GET /sessions/{session_id}/report.
func (h *TradingHandler) Report(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rep, err := h.trading.Report(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := reportResponse{
		Username:      rep.Owner,
		InitialCash:   domain.CentsToDollars(rep.InitialCash),
		CashBalance:   domain.CentsToDollars(rep.CashBalance),
		HoldingsValue: domain.CentsToDollars(rep.HoldingsValue),
		Equity:        domain.CentsToDollars(rep.Equity),
		ProfitLoss:    domain.CentsToDollars(rep.ProfitLoss),
		Transactions:  rep.Transactions,
		PricesVersion: rep.PricesVersion,
		Instruments:   make([]instrumentReportResponse, 0, len(rep.Instruments)),
	}
	for _, ir := range rep.Instruments {
		resp.Instruments = append(resp.Instruments, instrumentReportResponse{
			Instrument:      ir.Instrument,
			Quantity:        ir.Quantity,
			Price:           domain.CentsToDollars(ir.Price),
			MarketValue:     domain.CentsToDollars(ir.MarketValue),
			BoughtQuantity:  ir.BoughtQuantity,
			BoughtNotional:  domain.CentsToDollars(ir.BoughtNotional),
			SoldQuantity:    ir.SoldQuantity,
			SoldNotional:    domain.CentsToDollars(ir.SoldNotional),
			AverageBuyPrice: domain.CentsToDollars(ir.AverageBuyPrice),
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Transactions handles GET /sessions/{session_id}/transactions.
func (h *TradingHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	txs, err := h.trading.History(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, transactionListResponse{
		Transactions: toTransactionResponses(txs),
		Total:        len(txs),
	})
}

// Journal handles GET /sessions/{session_id}/journal.
func (h *TradingHandler) Journal(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	txs, err := h.trading.ArchivedHistory(sess)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, transactionListResponse{
		Transactions: toTransactionResponses(txs),
		Total:        len(txs),
	})
}

// Prices handles GET /prices.
func (h *TradingHandler) Prices(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, toPricesResponse(h.trading.Prices()))
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		Seq:         o.Seq,
		Side:        string(o.Side),
		Kind:        string(o.Kind),
		Instrument:  o.Instrument,
		Quantity:    o.Quantity,
		Price:       domain.CentsToDollars(o.LimitPrice),
		SubmittedAt: formatTime(o.SubmittedAt),
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toTransactionResponses(txs []domain.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionResponse{
			TransactionID:  tx.TransactionID,
			Seq:            tx.Seq,
			Side:           string(tx.Side),
			Kind:           string(tx.Kind),
			Instrument:     tx.Instrument,
			Quantity:       tx.Quantity,
			ExecutionPrice: domain.CentsToDollars(tx.ExecutionPrice),
			ExecutedAt:     formatTime(tx.ExecutedAt),
		})
	}
	return out
}

func toPricesResponse(s engine.PriceSnapshot) pricesResponse {
	quotes := s.Quotes()
	resp := pricesResponse{
		Version: s.Version,
		TakenAt: formatTime(s.TakenAt),
		Prices:  make([]quoteResponse, 0, len(quotes)),
	}
	for _, q := range quotes {
		resp.Prices = append(resp.Prices, quoteResponse{Instrument: q.Instrument, Price: domain.CentsToDollars(q.Price)})
	}
	return resp
}

func toCycleResponse(res *engine.CycleResult) cycleResponse {
	resp := cycleResponse{
		Prices:       toPricesResponse(res.Prices),
		Transactions: toTransactionResponses(res.Transactions),
		Discarded:    make([]discardedResponse, 0, len(res.Discarded)),
	}
	for _, d := range res.Discarded {
		resp.Discarded = append(resp.Discarded, discardedResponse{
			Order:  toOrderResponse(d.Order),
			Reason: d.Reason.Error(),
		})
	}
	return resp
}
