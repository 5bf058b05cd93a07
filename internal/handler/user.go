package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradesim/internal/domain"
	"github.com/efreitasn/tradesim/internal/service"
)

// UserHandler handles registration and session endpoints.
type UserHandler struct {
	users   *service.UserService
	trading *service.TradingService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, trading *service.TradingService) *UserHandler {
	return &UserHandler{users: users, trading: trading}
}

// credentialsRequest is the JSON body of POST /users and POST /sessions.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Username    string  `json:"username"`
	CashBalance float64 `json:"cash_balance"`
	CreatedAt   string  `json:"created_at"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

// Register handles POST /users.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u, err := h.users.Register(req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, userResponse{
		Username:    u.Username,
		CashBalance: domain.CentsToDollars(u.Account.InitialCash),
		CreatedAt:   formatTime(u.CreatedAt),
	})
}

// Login handles POST /sessions.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sess, err := h.trading.Login(req.Username, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		Username:  sess.Username,
		CreatedAt: formatTime(sess.CreatedAt),
	})
}

// Logout handles DELETE /sessions/{session_id}.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.trading.Logout(chi.URLParam(r, "session_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
