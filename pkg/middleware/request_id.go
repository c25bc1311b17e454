package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDContextKey is the context key for request ID
	RequestIDContextKey = "request_id"
)

// RequestIDStore remembers processed keys (request IDs, chat update IDs) for a while
type RequestIDStore interface {
	Store(ctx context.Context, key string, response []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// InMemoryRequestIDStore is an in-memory implementation of RequestIDStore
type InMemoryRequestIDStore struct {
	mu    sync.Mutex
	store map[string]requestIDEntry
	now   func() time.Time
}

type requestIDEntry struct {
	response  []byte
	expiresAt time.Time
}

// NewInMemoryRequestIDStore creates a new in-memory request ID store
func NewInMemoryRequestIDStore() *InMemoryRequestIDStore {
	return &InMemoryRequestIDStore{
		store: make(map[string]requestIDEntry),
		now:   time.Now,
	}
}

// Run purges expired entries every interval until ctx is done
func (s *InMemoryRequestIDStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge()
		}
	}
}

func (s *InMemoryRequestIDStore) Store(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store[key] = requestIDEntry{
		response:  response,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *InMemoryRequestIDStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return nil, ErrRequestIDNotFound
	}
	return entry.response, nil
}

func (s *InMemoryRequestIDStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(key)
	return ok, nil
}

// live must be called with s.mu held
func (s *InMemoryRequestIDStore) live(key string) (requestIDEntry, bool) {
	entry, exists := s.store[key]
	if !exists {
		return requestIDEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.store, key)
		return requestIDEntry{}, false
	}
	return entry, true
}

func (s *InMemoryRequestIDStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, entry := range s.store {
		if now.After(entry.expiresAt) {
			delete(s.store, key)
		}
	}
}

var (
	ErrRequestIDNotFound = &RequestIDError{Message: "request ID not found"}
)

type RequestIDError struct {
	Message string
}

func (e *RequestIDError) Error() string {
	return e.Message
}

// RequestIDMiddleware extracts or generates X-Request-ID header
func RequestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
			logger.Debug("Generated new request ID",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
			)
		}

		c.Set(RequestIDContextKey, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDContextKey, requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID retrieves the request ID from the Gin context
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get(RequestIDContextKey); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// IdempotencyMiddleware replays the stored response of a write request already seen with the same X-Request-ID.
// Successful responses are recorded for ttl.
func IdempotencyMiddleware(store RequestIDStore, logger *zap.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			c.Next()
			return
		}

		cached, err := store.Get(c.Request.Context(), requestID)
		if err == nil && len(cached) > 0 {
			logger.Info("Duplicate request detected, returning cached response",
				zap.String("request_id", requestID),
				zap.String("path", c.Request.URL.Path),
			)
			c.Data(http.StatusOK, "application/json", cached)
			c.Abort()
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() >= 200 && c.Writer.Status() < 300 && len(writer.body) > 0 {
			if err := store.Store(c.Request.Context(), requestID, writer.body, ttl); err != nil {
				logger.Warn("Failed to store response for idempotency",
					zap.String("request_id", requestID),
					zap.Error(err),
				)
			}
		}
	}
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body = append(w.body, []byte(s)...)
	return w.ResponseWriter.WriteString(s)
}
