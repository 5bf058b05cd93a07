package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/tradesim/internal/engine"
	"github.com/efreitasn/tradesim/internal/service"
	"github.com/efreitasn/tradesim/internal/sink"
	"github.com/efreitasn/tradesim/internal/store"
)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router  http.Handler
	market  *engine.Market
	users   *service.UserService
	trading *service.TradingService
}

func newTestEnv(sinks ...sink.Sink) *testEnv {
	market := engine.NewMarket([]string{"AAPL", "GOOGL", "MSFT"}, 10000, engine.Static{})
	users := service.NewUserService(store.NewUserStore(), 1_000_000, bcrypt.MinCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	trading := service.NewTradingService(users, market, sinks, logger)

	return &testEnv{
		router:  NewRouter(users, trading, "*", logger),
		market:  market,
		users:   users,
		trading: trading,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Fatalf("expected error %q, got %q (%s)", code, resp.Error, resp.Message)
	}
}

// login registers username and opens a session via the API.
func (env *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	creds := map[string]any{"username": username, "password": "pw"}
	expectStatus(t, env.doJSON(t, "POST", "/users", creds), http.StatusCreated)

	rr := env.doJSON(t, "POST", "/sessions", creds)
	expectStatus(t, rr, http.StatusCreated)
	var resp sessionResponse
	decodeJSON(t, rr, &resp)
	if resp.SessionID == "" {
		t.Fatal("empty session_id")
	}
	return resp.SessionID
}

// --- Healthz ---

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	expectStatus(t, rr, http.StatusOK)

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

// --- Users and sessions ---

func TestUsers_Register(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/users", map[string]any{"username": "alice", "password": "pw"})
	expectStatus(t, rr, http.StatusCreated)

	var resp userResponse
	decodeJSON(t, rr, &resp)
	if resp.Username != "alice" || resp.CashBalance != 10000 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.CreatedAt); err != nil {
		t.Fatalf("created_at not RFC 3339: %v", err)
	}
}

func TestUsers_RegisterErrors(t *testing.T) {
	env := newTestEnv()
	env.doJSON(t, "POST", "/users", map[string]any{"username": "alice", "password": "pw"})

	rr := env.doJSON(t, "POST", "/users", map[string]any{"username": "alice", "password": "pw"})
	expectErrorCode(t, rr, http.StatusConflict, "duplicate_username")

	rr = env.doJSON(t, "POST", "/users", map[string]any{"username": "bad name", "password": "pw"})
	expectErrorCode(t, rr, http.StatusBadRequest, "validation_error")
}

func TestSessions_BadCredentials(t *testing.T) {
	env := newTestEnv()
	env.doJSON(t, "POST", "/users", map[string]any{"username": "alice", "password": "pw"})

	rr := env.doJSON(t, "POST", "/sessions", map[string]any{"username": "alice", "password": "nope"})
	expectErrorCode(t, rr, http.StatusUnauthorized, "invalid_credentials")
}

func TestSessions_Logout(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")

	expectStatus(t, env.doJSON(t, "DELETE", "/sessions/"+id, nil), http.StatusNoContent)
	expectErrorCode(t, env.doJSON(t, "DELETE", "/sessions/"+id, nil), http.StatusNotFound, "session_not_found")
	expectErrorCode(t, env.doJSON(t, "GET", "/sessions/"+id+"/portfolio", nil), http.StatusNotFound, "session_not_found")
}

// --- Orders and cycles ---

func TestOrders_SubmitRunsCycle(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")

	rr := env.doJSON(t, "POST", "/sessions/"+id+"/orders", map[string]any{
		"side": "buy", "kind": "market", "instrument": "AAPL", "quantity": 10, "price": 100,
	})
	expectStatus(t, rr, http.StatusCreated)

	var resp submitOrderResponse
	decodeJSON(t, rr, &resp)
	if resp.Order.Seq != 1 || resp.Order.Instrument != "AAPL" {
		t.Fatalf("unexpected order: %+v", resp.Order)
	}
	if len(resp.Cycle.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(resp.Cycle.Transactions))
	}
	tx := resp.Cycle.Transactions[0]
	if tx.ExecutionPrice != 100 || tx.Quantity != 10 || tx.Side != "buy" {
		t.Fatalf("unexpected transaction: %+v", tx)
	}
	if len(resp.Cycle.Prices.Prices) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(resp.Cycle.Prices.Prices))
	}

	rr = env.doJSON(t, "GET", "/sessions/"+id+"/portfolio", nil)
	expectStatus(t, rr, http.StatusOK)
	var p portfolioResponse
	decodeJSON(t, rr, &p)
	if p.CashBalance != 9000 {
		t.Fatalf("expected cash 9000, got %v", p.CashBalance)
	}
	if len(p.Holdings) != 1 || p.Holdings[0].Quantity != 10 {
		t.Fatalf("unexpected holdings: %+v", p.Holdings)
	}
}

func TestJournal(t *testing.T) {
	j, err := sink.OpenJournal(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	env := newTestEnv(j)
	id := env.login(t, "alice")
	rr := env.doJSON(t, "POST", "/sessions/"+id+"/orders", map[string]any{
		"side": "buy", "kind": "market", "instrument": "MSFT", "quantity": 3,
	})
	expectStatus(t, rr, http.StatusCreated)

	rr = env.doJSON(t, "GET", "/sessions/"+id+"/journal", nil)
	expectStatus(t, rr, http.StatusOK)
	var resp transactionListResponse
	decodeJSON(t, rr, &resp)
	if resp.Total != 1 || resp.Transactions[0].Instrument != "MSFT" || resp.Transactions[0].Quantity != 3 {
		t.Fatalf("unexpected journal: %+v", resp)
	}
}

func TestJournal_Disabled(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")
	expectErrorCode(t, env.doJSON(t, "GET", "/sessions/"+id+"/journal", nil), http.StatusNotFound, "archive_disabled")
}

func TestOrders_Errors(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")
	path := "/sessions/" + id + "/orders"

	rr := env.doJSON(t, "POST", path, map[string]any{"side": "buy", "instrument": "AAPL", "quantity": 1000, "price": 100})
	expectErrorCode(t, rr, http.StatusUnprocessableEntity, "insufficient_funds")

	rr = env.doJSON(t, "POST", path, map[string]any{"side": "sell", "instrument": "AAPL", "quantity": 1})
	expectErrorCode(t, rr, http.StatusUnprocessableEntity, "insufficient_shares")

	rr = env.doJSON(t, "POST", path, map[string]any{"side": "buy", "instrument": "TSLA", "quantity": 1, "price": 1})
	expectErrorCode(t, rr, http.StatusNotFound, "unknown_instrument")

	rr = env.doJSON(t, "POST", path, map[string]any{"side": "buy", "instrument": "AAPL", "quantity": 0})
	expectErrorCode(t, rr, http.StatusBadRequest, "validation_error")

	rr = env.doJSON(t, "POST", "/sessions/nope/orders", map[string]any{"side": "buy", "instrument": "AAPL", "quantity": 1})
	expectErrorCode(t, rr, http.StatusNotFound, "session_not_found")
}

func TestOrders_RequiresJSONContentType(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")

	req := httptest.NewRequest("POST", "/sessions/"+id+"/orders", strings.NewReader(`{"side":"buy"}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	expectErrorCode(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestCycle_LimitOrderFillsAfterPriceMove(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")

	rr := env.doJSON(t, "POST", "/sessions/"+id+"/orders", map[string]any{
		"side": "buy", "kind": "limit", "instrument": "MSFT", "quantity": 2, "price": 90,
	})
	expectStatus(t, rr, http.StatusCreated)
	var submitted submitOrderResponse
	decodeJSON(t, rr, &submitted)
	if len(submitted.Cycle.Transactions) != 0 {
		t.Fatal("limit 90 should not fill at 100")
	}

	if err := env.market.SetPrice("MSFT", 8500); err != nil {
		t.Fatalf("set price: %v", err)
	}
	rr = env.doJSON(t, "POST", "/sessions/"+id+"/cycle", nil)
	expectStatus(t, rr, http.StatusOK)
	var cycle cycleResponse
	decodeJSON(t, rr, &cycle)
	if len(cycle.Transactions) != 1 || cycle.Transactions[0].ExecutionPrice != 85 {
		t.Fatalf("unexpected transactions: %+v", cycle.Transactions)
	}

	rr = env.doJSON(t, "GET", "/sessions/"+id+"/transactions", nil)
	expectStatus(t, rr, http.StatusOK)
	var list transactionListResponse
	decodeJSON(t, rr, &list)
	if list.Total != 1 {
		t.Fatalf("expected 1 transaction in history, got %d", list.Total)
	}
}

func TestReport(t *testing.T) {
	env := newTestEnv()
	id := env.login(t, "alice")
	env.doJSON(t, "POST", "/sessions/"+id+"/orders", map[string]any{
		"side": "buy", "instrument": "GOOGL", "quantity": 3, "price": 100,
	})
	if err := env.market.SetPrice("GOOGL", 11000); err != nil {
		t.Fatalf("set price: %v", err)
	}

	rr := env.doJSON(t, "GET", "/sessions/"+id+"/report", nil)
	expectStatus(t, rr, http.StatusOK)
	var rep reportResponse
	decodeJSON(t, rr, &rep)
	if rep.ProfitLoss != 30 {
		t.Fatalf("expected P/L 30, got %v", rep.ProfitLoss)
	}
	if len(rep.Instruments) != 1 || rep.Instruments[0].AverageBuyPrice != 100 {
		t.Fatalf("unexpected instruments: %+v", rep.Instruments)
	}
}

// --- Prices and backtest ---

func TestPrices(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/prices", nil)
	expectStatus(t, rr, http.StatusOK)

	var resp pricesResponse
	decodeJSON(t, rr, &resp)
	if len(resp.Prices) != 3 || resp.Prices[0].Instrument != "AAPL" || resp.Prices[0].Price != 100 {
		t.Fatalf("unexpected prices: %+v", resp.Prices)
	}
}

func TestBacktest(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "POST", "/backtest", map[string]any{
		"instrument": "AAPL", "prices": []float64{100, 105.5, 103, 110.25},
	})
	expectStatus(t, rr, http.StatusOK)
	var resp backtestResponse
	decodeJSON(t, rr, &resp)
	if resp.TotalGain != 10.25 {
		t.Fatalf("expected total gain 10.25, got %v", resp.TotalGain)
	}

	rr = env.doJSON(t, "POST", "/backtest", map[string]any{"instrument": "AAPL", "prices": []float64{100}})
	expectErrorCode(t, rr, http.StatusUnprocessableEntity, "not_enough_data")
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest("OPTIONS", "/prices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
