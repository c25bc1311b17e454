package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"products-stocks-telegram/internal/auth"
	stderrors "products-stocks-telegram/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TelegramSecretHeader carries the secret registered with setWebhook
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// AuthMiddleware validates bearer JWT tokens
func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Missing authorization header", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, stderrors.NewUnauthorized("missing authorization header", "Header: Authorization"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Warn("Invalid authorization header format", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, stderrors.NewUnauthorized("invalid authorization header format", "Expected: Bearer <token>"))
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, stderrors.NewUnauthorized("token expired", "Token has expired, please login again"))
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, stderrors.NewUnauthorized("invalid token", err.Error()))
			return
		}

		c.Set("username", claims.Username)
		c.Set("user_id", claims.Subject)

		c.Next()
	}
}

// TelegramSecretMiddleware rejects webhook calls without the configured secret token.
// An empty secret disables the check.
func TelegramSecretMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		got := c.GetHeader(TelegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.Warn("Webhook call with invalid secret token",
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, stderrors.NewUnauthorized("invalid webhook secret", "Header: "+TelegramSecretHeader))
			return
		}

		c.Next()
	}
}
