// Package cli implements the interactive text command loop.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/engine"
	"github.com/efreitasn/tradesim/internal/service"
)

const commandPrompt = "Enter command (register, login, buy, sell, portfolio, report, backtest, import, export, quit): "

// errEndOfInput signals that the input ran out mid-command.
var errEndOfInput = errors.New("end of input")

// notice is an error whose text is shown to the user verbatim.
type notice string

func (n notice) Error() string { return string(n) }

// REPL reads whitespace-separated tokens from in and writes prompts and
// results to out. It holds at most one active session.
type REPL struct {
	in      *bufio.Scanner
	out     io.Writer
	users   *service.UserService
	trading *service.TradingService
	session *service.Session
}

// New creates a REPL over the given services.
func New(in io.Reader, out io.Writer, users *service.UserService, trading *service.TradingService) *REPL {
	sc := bufio.NewScanner(in)
	sc.Split(bufio.ScanWords)
	return &REPL{
		in:      sc,
		out:     out,
		users:   users,
		trading: trading,
	}
}

// Run executes commands until quit, end of input, or ctx is cancelled.
// Every command other than quit is followed by one matching cycle for the
// active session.
func (r *REPL) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		r.printf("%s", commandPrompt)
		cmd, err := r.token()
		if err != nil {
			return r.endOfInput(err)
		}
		if cmd == "quit" {
			return nil
		}

		if err := r.dispatch(cmd); err != nil {
			if errors.Is(err, errEndOfInput) {
				return r.endOfInput(r.in.Err())
			}
			r.printf("%s\n", message(err))
		}
		r.cycle(ctx)
	}
	return ctx.Err()
}

func (r *REPL) endOfInput(err error) error {
	if err != nil && !errors.Is(err, errEndOfInput) {
		return err
	}
	r.printf("\n")
	return nil
}

func (r *REPL) dispatch(cmd string) error {
	switch cmd {
	case "register":
		return r.register()
	case "login":
		return r.login()
	case "buy":
		return r.order(domain.OrderSideBuy)
	case "sell":
		return r.order(domain.OrderSideSell)
	case "portfolio":
		return r.portfolio()
	case "report":
		return r.report()
	case "backtest":
		return r.backtest()
	case "import":
		return r.importUsers()
	case "export":
		return r.exportUsers()
	}
	r.printf("Unknown command!\n")
	return nil
}

func (r *REPL) register() error {
	username, err := r.ask("Enter username: ")
	if err != nil {
		return err
	}
	password, err := r.ask("Enter password: ")
	if err != nil {
		return err
	}
	if _, err := r.users.Register(username, password); err != nil {
		return err
	}
	r.printf("User registered successfully!\n")
	return nil
}

func (r *REPL) login() error {
	username, err := r.ask("Enter username: ")
	if err != nil {
		return err
	}
	password, err := r.ask("Enter password: ")
	if err != nil {
		return err
	}
	sess, err := r.trading.Login(username, password)
	if err != nil {
		return err
	}
	if r.session != nil {
		_ = r.trading.Logout(r.session.ID)
	}
	r.session = sess
	r.printf("Login successful!\n")
	return nil
}

func (r *REPL) order(side domain.OrderSide) error {
	instrument, err := r.ask("Enter stock symbol: ")
	if err != nil {
		return err
	}
	qtyText, err := r.ask("Enter quantity: ")
	if err != nil {
		return err
	}
	priceText, err := r.ask("Enter price: ")
	if err != nil {
		return err
	}
	kind, err := r.ask("Enter order type (market, limit, stop): ")
	if err != nil {
		return err
	}

	qty, err := strconv.ParseInt(qtyText, 10, 64)
	if err != nil {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	price, err := strconv.ParseFloat(priceText, 64)
	if err != nil {
		return &domain.ValidationError{Message: "price must be a number"}
	}

	o, err := r.trading.SubmitOrder(r.session, service.OrderRequest{
		Side:       string(side),
		Kind:       kind,
		Instrument: instrument,
		Quantity:   qty,
		Price:      price,
	})
	if err != nil {
		if side == domain.OrderSideBuy && errors.Is(err, domain.ErrInsufficientFunds) {
			return notice("Insufficient funds for this buy order!")
		}
		if side == domain.OrderSideSell && errors.Is(err, domain.ErrInsufficientShares) {
			return notice("Insufficient shares for this sell order!")
		}
		return err
	}

	label := "Buy"
	if side == domain.OrderSideSell {
		label = "Sell"
	}
	r.printf("Added %s Order: %d shares of %s at %s (%s, #%d)\n",
		label, o.Quantity, o.Instrument, domain.FormatCents(o.LimitPrice), o.Kind, o.Seq)
	return nil
}

func (r *REPL) portfolio() error {
	p, err := r.trading.Portfolio(r.session)
	if err != nil {
		return err
	}
	r.printf("\nPortfolio:\n")
	for _, h := range p.Account.Holdings {
		r.printf("%s: %d shares\n", h.Instrument, h.Quantity)
	}
	r.printf("Balance: %s\n", domain.FormatCents(p.Account.CashBalance))
	for _, o := range p.PendingBuys {
		r.printf("Pending: %s\n", o.String())
	}
	for _, o := range p.PendingSells {
		r.printf("Pending: %s\n", o.String())
	}
	return nil
}

func (r *REPL) report() error {
	rep, err := r.trading.Report(r.session)
	if err != nil {
		return err
	}
	r.printf("\nReport for %s:\n", rep.Owner)
	for _, ir := range rep.Instruments {
		r.printf("%s: %d shares worth %s | bought %d (avg %s) | sold %d for %s\n",
			ir.Instrument, ir.Quantity, domain.FormatCents(ir.MarketValue),
			ir.BoughtQuantity, domain.FormatCents(ir.AverageBuyPrice),
			ir.SoldQuantity, domain.FormatCents(ir.SoldNotional))
	}
	r.printf("Cash: %s\n", domain.FormatCents(rep.CashBalance))
	r.printf("Equity: %s\n", domain.FormatCents(rep.Equity))
	r.printf("Profit/Loss: %s\n", domain.FormatCents(rep.ProfitLoss))
	r.printf("Transactions: %d\n", rep.Transactions)
	return nil
}

func (r *REPL) backtest() error {
	instrument, err := r.ask("Enter stock symbol: ")
	if err != nil {
		return err
	}
	countText, err := r.ask("Enter number of historical prices: ")
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(countText)
	if err != nil || n < 0 {
		return &domain.ValidationError{Message: "number of prices must be a non-negative integer"}
	}

	r.printf("Enter historical prices: ")
	prices := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		tok, err := r.token()
		if err != nil {
			return err
		}
		p, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return &domain.ValidationError{Message: fmt.Sprintf("invalid price %q", tok)}
		}
		prices = append(prices, p)
	}

	res, err := service.Backtest(service.BacktestRequest{Instrument: instrument, Prices: prices})
	if err != nil {
		return err
	}
	r.printf("Backtesting results for %s:\n", res.Instrument)
	r.printf("Total Gain: $%.2f\n", res.TotalGain)
	r.printf("SMA(%d): %.2f\n", res.Period, res.LastSMA)
	if res.HasRSI {
		r.printf("RSI(%d): %.2f\n", res.Period, res.RSI)
	}
	if res.HasMACD {
		r.printf("MACD: %.4f (signal %.4f)\n", res.MACD, res.MACDSignal)
	}
	r.printf("SMA crossover: $%.2f over %d trades\n", res.StrategyGain, res.StrategyTrades)
	return nil
}

func (r *REPL) importUsers() error {
	path, err := r.ask("Enter filename: ")
	if err != nil {
		return err
	}
	res, err := r.users.Import(path)
	if err != nil {
		if errors.Is(err, domain.ErrFileUnavailable) {
			return notice("Error opening file for import!")
		}
		return err
	}
	r.printf("User data imported successfully! (%d registered, %d skipped)\n", res.Registered, res.Skipped)
	return nil
}

func (r *REPL) exportUsers() error {
	path, err := r.ask("Enter filename: ")
	if err != nil {
		return err
	}
	if _, err := r.users.Export(path); err != nil {
		if errors.Is(err, domain.ErrFileUnavailable) {
			return notice("Error opening file for export!")
		}
		return err
	}
	r.printf("User data exported successfully!\n")
	return nil
}

// cycle runs one matching cycle for the active session and prints its
// outcome. Without a session nothing happens.
func (r *REPL) cycle(ctx context.Context) {
	if r.session == nil {
		return
	}
	res, err := r.trading.RunCycle(ctx, r.session)
	if err != nil {
		r.printf("%s\n", message(err))
		return
	}
	r.printCycle(res)
}

func (r *REPL) printCycle(res *engine.CycleResult) {
	r.printf("\nCurrent Prices:\n")
	for _, q := range res.Prices.Quotes() {
		r.printf("Stock: %s - Price: %s\n", q.Instrument, domain.FormatCents(q.Price))
	}
	r.printf("\nExecuted transactions:\n")
	for _, tx := range res.Transactions {
		r.printf("Seq: %d | %s | %s: %d shares at %s\n",
			tx.Seq, tx.Side, tx.Instrument, tx.Quantity, domain.FormatCents(tx.ExecutionPrice))
	}
	for _, d := range res.Discarded {
		r.printf("Discarded: %s (%s)\n", d.Order.String(), d.Reason)
	}
	r.printf("\n")
}

func (r *REPL) ask(prompt string) (string, error) {
	r.printf("%s", prompt)
	return r.token()
}

func (r *REPL) token() (string, error) {
	if !r.in.Scan() {
		if err := r.in.Err(); err != nil {
			return "", err
		}
		return "", errEndOfInput
	}
	return r.in.Text(), nil
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// message maps an error to the text shown to the user.
func message(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return "Invalid input: " + ve.Message
	case errors.Is(err, domain.ErrNoActiveSession), errors.Is(err, domain.ErrSessionNotFound):
		return "Please log in first!"
	case errors.Is(err, domain.ErrDuplicateUsername):
		return "Username already exists!"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid username or password!"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "Insufficient funds!"
	case errors.Is(err, domain.ErrInsufficientShares):
		return "Insufficient shares!"
	case errors.Is(err, domain.ErrAmountOverflow):
		return "Order amount is too large!"
	case errors.Is(err, domain.ErrUnknownInstrument):
		return "Unknown stock symbol!"
	case errors.Is(err, domain.ErrNotEnoughData):
		return "Not enough data for backtesting."
	}
	return err.Error()
}
