package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Operator string
	Scopes   []string
	JTI      string
}

type contextKeyClaims struct{}

// ContextKeyClaims is exported for use in handler tests.
var ContextKeyClaims = contextKeyClaims{}

// GetOperator retrieves the authenticated operator from the context.
func GetOperator(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Operator
	}
	return ""
}

// GetClaims retrieves the validated claims from the context.
func GetClaims(ctx context.Context) *JWTClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*JWTClaims)
	return claims
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeUnauthorized(ctx, w, logger, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeUnauthorized(ctx, w, logger, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated requests whose token lacks scope. It
// must run after RequireAuth.
func RequireScope(scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := GetClaims(ctx)
			if claims == nil || !slices.Contains(claims.Scopes, scope) {
				logger.WarnContext(ctx, "forbidden - missing scope",
					"scope", scope,
					"operator", GetOperator(ctx),
					"request_id", GetRequestID(ctx),
				)
				writeJSONError(ctx, w, logger, http.StatusForbidden,
					`{"error":"forbidden","error_description":"Token lacks the required scope"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, description string) {
	writeJSONError(ctx, w, logger, http.StatusUnauthorized,
		`{"error":"unauthorized","error_description":"`+description+`"}`)
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.ErrorContext(ctx, "failed to write error response",
			"error", err,
			"request_id", GetRequestID(ctx),
		)
	}
}
