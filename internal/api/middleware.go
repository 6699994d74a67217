package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/cardlinkapp/cardlink-server/internal/auth"
	"github.com/cardlinkapp/cardlink-server/internal/http/response"
	"github.com/cardlinkapp/cardlink-server/internal/sse"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	contextKeyUserID  contextKey = "user_id"
	contextKeyEmail   contextKey = "email"
	contextKeyIsAdmin contextKey = "is_admin"
	contextKeyTokenID contextKey = "token_id"
)

// requireAuth is middleware that validates access tokens and attaches user context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "Missing authorization header", s.logger)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(w, "Invalid authorization header format", s.logger)
			return
		}

		claims, err := s.tokenService.VerifyAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "Invalid or expired token", s.logger)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, contextKeyEmail, claims.Email)
		ctx = context.WithValue(ctx, contextKeyIsAdmin, claims.IsAdmin)
		ctx = context.WithValue(ctx, contextKeyTokenID, claims.TokenID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin is middleware that ensures the authenticated user is an admin.
// Must be used after requireAuth.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r.Context()) {
			response.Forbidden(w, "Admin access required", s.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getUserID extracts the authenticated user ID from request context.
// Returns empty string if not authenticated.
func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// getEmail extracts the authenticated user email from request context.
// Returns empty string if not authenticated.
func getEmail(ctx context.Context) string {
	if email, ok := ctx.Value(contextKeyEmail).(string); ok {
		return email
	}
	return ""
}

// isAdmin checks if the authenticated user is an admin.
// Returns false if not authenticated.
func isAdmin(ctx context.Context) bool {
	if admin, ok := ctx.Value(contextKeyIsAdmin).(bool); ok {
		return admin
	}
	return false
}

// SSEIdentity builds the identity check for the SSE stream. EventSource
// clients cannot set an Authorization header, so a "token" query parameter
// is accepted as well.
func SSEIdentity(tokens *auth.TokenService) sse.IdentityFunc {
	return func(r *http.Request) (string, bool, bool) {
		tokenString := r.URL.Query().Get("token")
		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			return "", false, false
		}

		claims, err := tokens.VerifyAccessToken(tokenString)
		if err != nil {
			return "", false, false
		}
		return claims.UserID, claims.IsAdmin, true
	}
}
