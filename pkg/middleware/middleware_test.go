package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"products-stocks-telegram/internal/auth"
	stderrors "products-stocks-telegram/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret-key-min-32-chars-for-testing"

func TestRequestIDMiddleware_GenerateID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	responseID := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(responseID)
	assert.NoError(t, err)
}

func TestRequestIDMiddleware_UseProvidedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestIDMiddleware(zap.NewNop()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})

	providedID := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, providedID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, providedID, w.Header().Get(RequestIDHeader))
}

func TestIdempotencyMiddleware_ReplaysStoredResponse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewInMemoryRequestIDStore()
	calls := 0

	router := gin.New()
	router.Use(IdempotencyMiddleware(store, zap.NewNop(), 5*time.Minute))
	router.POST("/release", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"released": true})
	})

	requestID := uuid.New().String()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/release", nil)
		req.Header.Set(RequestIDHeader, requestID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"released":true}`, w.Body.String())
	}
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddleware_DoesNotStoreFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewInMemoryRequestIDStore()

	router := gin.New()
	router.Use(IdempotencyMiddleware(store, zap.NewNop(), 5*time.Minute))
	router.POST("/release", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "RequestNotFound"})
	})

	requestID := uuid.New().String()
	req := httptest.NewRequest(http.MethodPost, "/release", nil)
	req.Header.Set(RequestIDHeader, requestID)
	router.ServeHTTP(httptest.NewRecorder(), req)

	exists, err := store.Exists(context.Background(), requestID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInMemoryRequestIDStore_Expiry(t *testing.T) {
	store := NewInMemoryRequestIDStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, "telegram:update:1", []byte("1"), time.Minute))

	got, err := store.Get(ctx, "telegram:update:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	now = now.Add(2 * time.Minute)
	exists, err := store.Exists(ctx, "telegram:update:1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Get(ctx, "telegram:update:1")
	assert.ErrorIs(t, err, ErrRequestIDNotFound)
}

func setupAuthRouter(jwtManager *auth.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	protected := router.Group("/api/v1")
	protected.Use(AuthMiddleware(jwtManager, zap.NewNop()))
	protected.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	return router
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jwtManager := auth.NewJWTManager(testSecret, time.Minute, zap.NewNop())
	router := setupAuthRouter(jwtManager)

	token, _, err := jwtManager.GenerateToken("admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	jwtManager := auth.NewJWTManager(testSecret, time.Minute, zap.NewNop())
	router := setupAuthRouter(jwtManager)

	other := auth.NewJWTManager("another-secret-key-min-32-chars-for-tests", time.Minute, zap.NewNop())
	foreign, _, err := other.GenerateToken("admin")
	require.NoError(t, err)

	testCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no Bearer prefix", "invalid-token"},
		{"wrong prefix", "Token invalid-token"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer invalid.token.here"},
		{"foreign signature", "Bearer " + foreign},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestTelegramSecretMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", TelegramSecretMiddleware("s3cr3t", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	testCases := []struct {
		name   string
		secret string
		want   int
	}{
		{"matching secret", "s3cr3t", http.StatusOK},
		{"wrong secret", "nope", http.StatusUnauthorized},
		{"missing secret", "", http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))
			if tc.secret != "" {
				req.Header.Set(TelegramSecretHeader, tc.secret)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestTelegramSecretMiddleware_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", TelegramSecretMiddleware("", zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler(zap.NewNop()))
	router.GET("/standard", func(c *gin.Context) {
		c.Error(stderrors.NewClaimantNotFound("abc"))
		c.Abort()
	})
	router.GET("/plain", func(c *gin.Context) {
		c.Error(errors.New("boom"))
		c.Abort()
	})
	router.GET("/panic", RecoveryHandler(zap.NewNop()), func(c *gin.Context) {
		panic("unexpected")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/standard", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ClaimantNotFound")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "InternalError")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
