package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/JonnyWalker81/cyclesense/backend/internal/apierror"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
	"github.com/JonnyWalker81/cyclesense/backend/pkg/supabase"
)

// Context keys set by Auth
const (
	UserIDKey    = "user_id"
	UserEmailKey = "user_email"
	UserTokenKey = "user_token"
)

// TokenVerifier resolves a bearer token to a user
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*supabase.User, error)
}

// Auth middleware to verify JWT tokens
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			log.Debug("authentication failed: missing or malformed authorization header")
			apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
			c.Abort()
			return
		}

		user, err := verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			log.Warn("authentication failed: token verification error", logger.Err(err))
			apierror.WriteProblem(c, apierror.NewUnauthorizedError(apierror.GetRequestID(c)))
			c.Abort()
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserEmailKey, user.Email)
		c.Set(UserTokenKey, token)

		// Add user ID to request context for logging
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), user.ID))

		log.Debug("authentication successful", logger.String("user_id", user.ID))

		c.Next()
	}
}
