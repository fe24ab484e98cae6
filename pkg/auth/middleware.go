package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware provides HTTP authentication middleware for the MCP transport.
// It is thin and delegates token validation to the JWKS client.
type Middleware struct {
	jwks   JWKSClientInterface
	logger *zap.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(jwks JWKSClientInterface, logger *zap.Logger) *Middleware {
	return &Middleware{jwks: jwks, logger: logger}
}

// WithAuth validates the Bearer token when present and stores claims in the
// request context. Requests without a token proceed as the anonymous caller;
// restriction evaluation decides what they may see. Invalid tokens are
// rejected.
func (m *Middleware) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.jwks.ValidateToken(token)
		if err != nil {
			m.logger.Debug("rejected token", zap.Error(err))
			m.unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
