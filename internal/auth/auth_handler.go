package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	"products-stocks-telegram/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler issues admin API tokens
type AuthHandler struct {
	jwtManager  *JWTManager
	credentials map[string]string
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler. credentials maps username to password.
func NewAuthHandler(jwtManager *JWTManager, credentials map[string]string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		jwtManager:  jwtManager,
		credentials: credentials,
		logger:      logger,
	}
}

// LoginRequest represents the login request
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"admin123"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token     string    `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	Type      string    `json:"type" example:"Bearer"`
	ExpiresIn int       `json:"expires_in" example:"600"`
	ExpiresAt time.Time `json:"expires_at" example:"2024-01-15T12:00:00Z"`
}

// Login handles POST /api/v1/auth/login
// @Summary      Login and get JWT token
// @Description  Authenticates an administrator and returns a bearer token for the admin endpoints
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      LoginRequest  true  "Login credentials"
// @Success      200      {object}  LoginResponse
// @Failure      400      {object}  errors.StandardError
// @Failure      401      {object}  errors.StandardError
// @Router       /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid login request", zap.Error(err))
		c.Error(errors.NewValidationError("invalid request", "username or password"))
		c.Abort()
		return
	}

	if !h.validateCredentials(req.Username, req.Password) {
		h.logger.Warn("Invalid credentials", zap.String("username", req.Username))
		c.Error(errors.NewUnauthorized("invalid credentials", "username or password incorrect"))
		c.Abort()
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(req.Username)
	if err != nil {
		c.Error(errors.NewInternalError("failed to generate token", err))
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		Type:      "Bearer",
		ExpiresIn: int(h.jwtManager.TTL().Seconds()),
		ExpiresAt: expiresAt,
	})
}

func (h *AuthHandler) validateCredentials(username, password string) bool {
	expected, ok := h.credentials[username]
	if !ok || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1
}
