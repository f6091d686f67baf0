package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/GTFB/forlifely-sub004/internal/shared/database"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

// AccountStore is the account read contract the middleware needs.
type AccountStore interface {
	GetAccountByKeyHash(ctx context.Context, keyHash string) (*models.CallerAccount, error)
}

type ctxKey int

const accountKey ctxKey = iota

// AccountFromContext returns the authenticated caller account, if any.
func AccountFromContext(ctx context.Context) (*models.CallerAccount, bool) {
	acct, ok := ctx.Value(accountKey).(*models.CallerAccount)
	return acct, ok
}

type Middleware struct {
	store AccountStore
}

func NewMiddleware(store AccountStore) *Middleware {
	return &Middleware{store: store}
}

// Auth resolves the bearer token to a caller account by hash and stores it
// in the request context.
func (m *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		acct, err := m.store.GetAccountByKeyHash(r.Context(), database.HashKey(parts[1]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORS handles cross-origin preflight and headers.
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
