package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "products-stocks-telegram"

// JWTClaims represents the JWT claims
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation for the admin API
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewJWTManager creates a new JWT manager. Tokens expire after ttl.
func NewJWTManager(secretKey string, ttl time.Duration, logger *zap.Logger) *JWTManager {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// TTL returns the lifetime of generated tokens
func (j *JWTManager) TTL() time.Duration {
	return j.ttl
}

// GenerateToken generates a signed token for username
func (j *JWTManager) GenerateToken(username string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.ttl)

	claims := JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("Failed to generate token", zap.Error(err))
		return "", time.Time{}, err
	}

	j.logger.Info("Token generated",
		zap.String("username", username),
		zap.Time("expires_at", expiresAt),
	)

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			j.logger.Warn("Token expired", zap.Error(err))
			return nil, ErrExpiredToken
		}
		j.logger.Warn("Invalid token", zap.Error(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Issuer != issuer {
		j.logger.Warn("Invalid token claims")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
