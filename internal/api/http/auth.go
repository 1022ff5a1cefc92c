package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/learnerinfo/lis/internal/accounts"
)

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries an issued session token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Name      string    `json:"name"`
}

// LoginHandler exchanges credentials for a session token.
type LoginHandler struct {
	accounts *accounts.Store
	tokens   *accounts.Tokens
}

// NewLoginHandler creates a login handler.
func NewLoginHandler(store *accounts.Store, tokens *accounts.Tokens) *LoginHandler {
	return &LoginHandler{accounts: store, tokens: tokens}
}

// ServeHTTP handles POST /v1/auth/login.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), requestID)
		return
	}

	acct, err := h.accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	token, expires, err := h.tokens.Issue(acct)
	if err != nil {
		writeLISError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires, Name: acct.Name()})
}
