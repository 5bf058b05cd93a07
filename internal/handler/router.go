package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/efreitasn/tradesim/internal/service"
)

// NewRouter creates a chi router with all routes registered, CORS, request
// logging and Content-Type validation middleware.
func NewRouter(
	users *service.UserService,
	trading *service.TradingService,
	corsOrigin string,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{corsOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	userH := NewUserHandler(users, trading)
	tradingH := NewTradingHandler(trading)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/users", userH.Register)
	r.Post("/sessions", userH.Login)

	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Delete("/", userH.Logout)
		r.Post("/orders", tradingH.SubmitOrder)
		r.Post("/cycle", tradingH.RunCycle)
		r.Get("/portfolio", tradingH.Portfolio)
		r.Get("/report", tradingH.Report)
		r.Get("/transactions", tradingH.Transactions)
		r.Get("/journal", tradingH.Journal)
	})

	r.Get("/prices", tradingH.Prices)
	r.Post("/backtest", Backtest)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON rejects POST requests whose body is not declared as
// JSON. Bodiless POSTs (cycle) are allowed through.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
