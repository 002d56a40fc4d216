package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/camden-git/ppemonitor/models"
	"github.com/camden-git/ppemonitor/repository"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// UserContextKey is the key used to store the user object in the request context.
	UserContextKey ContextKey = "user"
)

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// bearerToken reads the Authorization header. Websocket handshakes from a browser
// cannot set headers, so they may pass the token as ?access_token= instead.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" && strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware verifies the bearer token, loads the user it names and stores it
// in the request context. Tokens of deleted users are rejected.
func AuthMiddleware(tokens *TokenManager, userRepo repository.UserRepository, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Authorization header format must be Bearer {token}")
				return
			}

			identity, err := tokens.Resolve(tokenString)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Could not validate credentials")
				return
			}

			user, err := userRepo.GetByID(r.Context(), identity.UserID)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					logger.Error("failed to load user for token", zap.String("user_id", identity.UserID), zap.Error(err))
					WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to load user")
					return
				}
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "User not found")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireGlobalPermission rejects users whose role lacks the permission. It must
// run after AuthMiddleware.
func RequireGlobalPermission(requiredPermission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
				return
			}
			if !user.HasGlobalPermission(requiredPermission) {
				WriteAPIError(w, http.StatusForbidden, CodeForbidden, "Requires global permission '"+requiredPermission+"'")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
