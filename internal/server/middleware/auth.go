// Package middleware provides HTTP middleware for authenticating operators and webhooks.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// callerKey is the context key for storing the authenticated caller.
const callerKey ContextKey = "caller"

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// TokenValidator validates a bearer token and returns the caller it identifies.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// StaticToken accepts a single shared operator token.
type StaticToken string

// ValidateToken compares in constant time.
func (s StaticToken) ValidateToken(tokenString string) (string, error) {
	if s == "" || subtle.ConstantTimeCompare([]byte(s), []byte(tokenString)) != 1 {
		return "", fmt.Errorf("invalid token")
	}
	return "operator", nil
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the caller to request context.
func AuthMiddleware(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Handle case-insensitive "Bearer" prefix
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			caller, err := tokens.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WebhookSecret rejects requests whose Telegram secret header does not match.
// An empty secret disables the check.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.Header.Get(TelegramSecretHeader)
				if subtle.ConstantTimeCompare([]byte(secret), []byte(got)) != 1 {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetCaller extracts the authenticated caller from the request context.
func GetCaller(r *http.Request) (string, error) {
	caller, ok := r.Context().Value(callerKey).(string)
	if !ok {
		return "", fmt.Errorf("caller not found in request context")
	}
	return caller, nil
}
