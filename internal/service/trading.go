package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/engine"
	"github.com/efreitasn/tradesim/internal/sink"
	"github.com/efreitasn/tradesim/internal/store"
)

// Session is an authenticated user's handle for trading operations.
type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// OrderRequest is the input for SubmitOrder. Price is in dollars.
type OrderRequest struct {
	Side       string
	Kind       string
	Instrument string
	Quantity   int64
	Price      float64
}

// TradingService owns sessions and the per-user matchers. Each user gets
// exactly one Matcher for the life of the process, so logging in again
// resumes the same queues and ledger.
type TradingService struct {
	users   *UserService
	market  *engine.Market
	sinks   []sink.Sink
	archive sink.Archive // first sink that can read back; nil if none
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	matchers map[string]*engine.Matcher
}

// NewTradingService creates a TradingService. Transactions of every cycle
// are fanned out to sinks; a nil logger uses slog.Default.
func NewTradingService(users *UserService, market *engine.Market, sinks []sink.Sink, logger *slog.Logger) *TradingService {
	if logger == nil {
		logger = slog.Default()
	}
	var archive sink.Archive
	for _, sk := range sinks {
		if a, ok := sk.(sink.Archive); ok {
			archive = a
			break
		}
	}
	return &TradingService{
		users:    users,
		market:   market,
		sinks:    sinks,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		matchers: make(map[string]*engine.Matcher),
	}
}

// Login authenticates the user and opens a new session.
func (s *TradingService) Login(username, password string) (*Session, error) {
	u, err := s.users.Authenticate(username, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matchers[u.Username]; !ok {
		m := engine.NewMatcher(s.market, store.NewLedger())
		m.Bind(u.Account)
		s.matchers[u.Username] = m
	}

	sess := &Session{
		ID:        uuid.New().String(),
		Username:  u.Username,
		CreatedAt: s.now().UTC(),
	}
	s.sessions[sess.ID] = sess
	s.logger.Info("session opened", slog.String("username", u.Username), slog.String("session_id", sess.ID))
	return sess, nil
}

// Logout closes the session. Queued orders stay with the user's matcher.
func (s *TradingService) Logout(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.logger.Info("session closed", slog.String("username", sess.Username), slog.String("session_id", id))
	return nil
}

// Session looks up an open session by ID.
func (s *TradingService) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Sessions returns the open sessions ordered by creation time.
func (s *TradingService) Sessions() []*Session {
	s.mu.Lock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *TradingService) matcherFor(sess *Session) (*engine.Matcher, error) {
	if sess == nil {
		return nil, domain.ErrNoActiveSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.ID]; !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.matchers[sess.Username], nil
}

// SubmitOrder validates req and queues it on the session's matcher.
func (s *TradingService) SubmitOrder(sess *Session, req OrderRequest) (*domain.Order, error) {
	m, err := s.matcherFor(sess)
	if err != nil {
		return nil, err
	}

	side := domain.OrderSide(req.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	kind, err := domain.ParseOrderKind(req.Kind)
	if err != nil {
		return nil, err
	}
	if !domain.ValidInstrument(req.Instrument) {
		return nil, &domain.ValidationError{Message: "instrument must be an upper-case ticker symbol"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if req.Price < 0 {
		return nil, &domain.ValidationError{Message: "price must be >= 0"}
	}
	price, err := domain.DollarsToCents(req.Price)
	if err != nil {
		return nil, &domain.ValidationError{Message: "price: " + err.Error()}
	}
	if !s.market.Tracks(req.Instrument) {
		return nil, domain.ErrUnknownInstrument
	}

	order, err := m.Submit(&domain.Order{
		Side:       side,
		Kind:       kind,
		Instrument: req.Instrument,
		Quantity:   req.Quantity,
		LimitPrice: price,
	})
	if err != nil {
		s.logger.Debug("order rejected",
			slog.String("username", sess.Username),
			slog.String("instrument", req.Instrument),
			slog.String("side", req.Side),
			slog.String("reason", err.Error()),
		)
		return nil, err
	}
	s.logger.Debug("order queued",
		slog.String("username", sess.Username),
		slog.Int64("seq", int64(order.Seq)),
		slog.String("instrument", order.Instrument),
		slog.String("side", string(order.Side)),
		slog.String("kind", string(order.Kind)),
		slog.Int64("quantity", order.Quantity),
	)
	return order, nil
}

// RunCycle runs one matching cycle for the session and forwards the
// executed transactions to every sink. Sink failures are logged only.
func (s *TradingService) RunCycle(ctx context.Context, sess *Session) (*engine.CycleResult, error) {
	m, err := s.matcherFor(sess)
	if err != nil {
		return nil, err
	}

	result, err := m.RunCycle()
	if err != nil {
		return nil, err
	}

	for _, d := range result.Discarded {
		s.logger.Info("order discarded",
			slog.String("username", sess.Username),
			slog.Int64("seq", int64(d.Order.Seq)),
			slog.String("instrument", d.Order.Instrument),
			slog.String("reason", d.Reason.Error()),
		)
	}
	if len(result.Transactions) > 0 {
		s.logger.Info("cycle executed",
			slog.String("username", sess.Username),
			slog.Int("transactions", len(result.Transactions)),
			slog.Int64("prices_version", int64(result.Prices.Version)),
		)
		s.publish(ctx, result.Transactions)
	}
	return result, nil
}

func (s *TradingService) publish(ctx context.Context, txs []domain.Transaction) {
	for _, sk := range s.sinks {
		if err := sk.Publish(ctx, txs); err != nil {
			s.logger.Error("sink publish failed",
				slog.String("sink", sk.Name()),
				slog.Int("transactions", len(txs)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Portfolio returns the session's account and pending orders.
func (s *TradingService) Portfolio(sess *Session) (*engine.Portfolio, error) {
	m, err := s.matcherFor(sess)
	if err != nil {
		return nil, err
	}
	return m.Portfolio()
}

// History returns the session's executed transactions in execution order.
func (s *TradingService) History(sess *Session) ([]domain.Transaction, error) {
	m, err := s.matcherFor(sess)
	if err != nil {
		return nil, err
	}
	return m.History(), nil
}

// ArchivedHistory returns the session user's transactions as stored by
// the archiving sink, including those of earlier processes.
func (s *TradingService) ArchivedHistory(sess *Session) ([]domain.Transaction, error) {
	if _, err := s.matcherFor(sess); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, domain.ErrArchiveDisabled
	}
	return s.archive.History(sess.Username)
}

// Prices returns the last published price snapshot.
func (s *TradingService) Prices() engine.PriceSnapshot {
	return s.market.Snapshot()
}
