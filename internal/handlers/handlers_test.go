package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"products-stocks-telegram/internal/dispatch"
	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/internal/notify"
	"products-stocks-telegram/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockEventHandler is a mock implementation of EventHandler
type MockEventHandler struct {
	mock.Mock
}

func (m *MockEventHandler) Handle(ctx context.Context, ev dispatch.Event) ([]notify.Notification, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notify.Notification), args.Error(1)
}

// MockTransport is a mock implementation of Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockTransport) LastMessage(ctx context.Context, chatID int64) int {
	args := m.Called(ctx, chatID)
	return args.Int(0)
}

func (m *MockTransport) AnswerCallback(ctx context.Context, callbackID string) error {
	args := m.Called(ctx, callbackID)
	return args.Error(0)
}

// MockClaimantFinder is a mock implementation of ClaimantFinder
type MockClaimantFinder struct {
	mock.Mock
}

func (m *MockClaimantFinder) FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Claimant), args.Error(1)
}

// MockReleaser is a mock implementation of Releaser
type MockReleaser struct {
	mock.Mock
}

func (m *MockReleaser) Release(ctx context.Context, requestID, operator uuid.UUID, reason string) (bool, error) {
	args := m.Called(ctx, requestID, operator, reason)
	return args.Bool(0), args.Error(1)
}

func setupRouter(register func(r *gin.Engine)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(zap.NewNop()))
	register(r)
	return r
}

func postJSON(r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		raw, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func callbackUpdate(updateID int64, data string) map[string]interface{} {
	return map[string]interface{}{
		"update_id": updateID,
		"callback_query": map[string]interface{}{
			"id":   "cb-1",
			"from": map[string]interface{}{"id": 7},
			"data": data,
			"message": map[string]interface{}{
				"message_id": 11,
				"chat":       map[string]interface{}{"id": 7},
				"date":       0,
			},
		},
	}
}

func newWebhook(handler *MockEventHandler, transport *MockTransport, updates middleware.RequestIDStore) *gin.Engine {
	h := NewTelegramHandler(handler, transport, updates, zap.NewNop())
	return setupRouter(func(r *gin.Engine) {
		r.POST("/telegram/webhook", h.Webhook)
	})
}

func TestWebhook_Callback(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	updates := middleware.NewInMemoryRequestIDStore()
	r := newWebhook(eventsMock, transport, updates)

	requestID := uuid.New().String()
	want := dispatch.Event{
		ChatID:        7,
		MessageID:     11,
		LastMessageID: 10,
		Action:        notify.KeyExtraditionDone,
		Payload:       requestID,
	}
	reply := notify.Notification{ChatID: 7, Text: "done", Delete: []int{11, 10}}

	transport.On("LastMessage", mock.Anything, int64(7)).Return(10)
	transport.On("AnswerCallback", mock.Anything, "cb-1").Return(nil)
	eventsMock.On("Handle", mock.Anything, want).Return([]notify.Notification{reply}, nil)
	transport.On("Notify", mock.Anything, reply).Return(nil)

	w := postJSON(r, "/telegram/webhook", callbackUpdate(100, notify.KeyExtraditionDone+"|"+requestID))

	assert.Equal(t, http.StatusOK, w.Code)
	eventsMock.AssertExpectations(t)
	transport.AssertExpectations(t)

	seen, err := updates.Exists(context.Background(), "telegram:update:100")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestWebhook_TextMessage(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	r := newWebhook(eventsMock, transport, middleware.NewInMemoryRequestIDStore())

	transport.On("LastMessage", mock.Anything, int64(7)).Return(0)
	eventsMock.On("Handle", mock.Anything, dispatch.Event{ChatID: 7, MessageID: 5, Text: "/start"}).
		Return([]notify.Notification{{}}, nil)

	w := postJSON(r, "/telegram/webhook", map[string]interface{}{
		"update_id": 1,
		"message": map[string]interface{}{
			"message_id": 5,
			"chat":       map[string]interface{}{"id": 7},
			"text":       "/start",
			"date":       0,
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	// empty notifications are not sent
	transport.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
	eventsMock.AssertExpectations(t)
}

func TestWebhook_DuplicateUpdate(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	updates := middleware.NewInMemoryRequestIDStore()
	require.NoError(t, updates.Store(context.Background(), "telegram:update:100", []byte("1"), time.Hour))
	r := newWebhook(eventsMock, transport, updates)

	w := postJSON(r, "/telegram/webhook", callbackUpdate(100, notify.KeyMenu))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
	eventsMock.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestWebhook_IgnoresUnsupportedUpdate(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	r := newWebhook(eventsMock, transport, middleware.NewInMemoryRequestIDStore())

	w := postJSON(r, "/telegram/webhook", map[string]interface{}{"update_id": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	eventsMock.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestWebhook_InvalidBody(t *testing.T) {
	r := newWebhook(new(MockEventHandler), new(MockTransport), middleware.NewInMemoryRequestIDStore())

	w := postJSON(r, "/telegram/webhook", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_TransportFailure(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	updates := middleware.NewInMemoryRequestIDStore()
	r := newWebhook(eventsMock, transport, updates)

	reply := notify.Notification{ChatID: 7, Text: "menu"}
	transport.On("LastMessage", mock.Anything, int64(7)).Return(0)
	transport.On("AnswerCallback", mock.Anything, "cb-1").Return(nil)
	eventsMock.On("Handle", mock.Anything, mock.Anything).Return([]notify.Notification{reply}, nil)
	transport.On("Notify", mock.Anything, reply).Return(stderrors.New("connection reset"))

	w := postJSON(r, "/telegram/webhook", callbackUpdate(200, notify.KeyMenu))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	// a failed update is not remembered so the redelivery is processed
	seen, _ := updates.Exists(context.Background(), "telegram:update:200")
	assert.False(t, seen)
}

func TestWebhook_HandlerFailure(t *testing.T) {
	eventsMock := new(MockEventHandler)
	transport := new(MockTransport)
	r := newWebhook(eventsMock, transport, middleware.NewInMemoryRequestIDStore())

	transport.On("LastMessage", mock.Anything, int64(7)).Return(0)
	transport.On("AnswerCallback", mock.Anything, "cb-1").Return(nil)
	eventsMock.On("Handle", mock.Anything, mock.Anything).Return(nil, stderrors.New("database is locked"))

	w := postJSON(r, "/telegram/webhook", callbackUpdate(300, notify.KeyMenu))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func newAdmin(claims *MockClaimantFinder, releaser *MockReleaser) *gin.Engine {
	h := NewAdminHandler(claims, releaser, zap.NewNop())
	return setupRouter(func(r *gin.Engine) {
		r.GET("/api/v1/requests/:id/claimant", h.GetClaimant)
		r.POST("/api/v1/requests/:id/release", h.ReleaseRequest)
	})
}

func TestGetClaimant(t *testing.T) {
	claims := new(MockClaimantFinder)
	r := newAdmin(claims, new(MockReleaser))

	requestID := uuid.New()
	profileID := uuid.New()
	claims.On("FindClaimant", mock.Anything, requestID).
		Return(&domain.Claimant{ProfileID: profileID, Username: "ivanov"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/"+requestID.String()+"/claimant", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ClaimantResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, requestID, resp.RequestID)
	assert.Equal(t, profileID, resp.ProfileID)
	assert.Equal(t, "ivanov", resp.Username)
}

func TestGetClaimant_NotClaimed(t *testing.T) {
	claims := new(MockClaimantFinder)
	r := newAdmin(claims, new(MockReleaser))

	requestID := uuid.New()
	claims.On("FindClaimant", mock.Anything, requestID).Return(nil, domain.ErrClaimantNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/"+requestID.String()+"/claimant", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "ClaimantNotFound")
}

func TestGetClaimant_InvalidID(t *testing.T) {
	claims := new(MockClaimantFinder)
	r := newAdmin(claims, new(MockReleaser))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/not-a-uuid/claimant", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	claims.AssertNotCalled(t, "FindClaimant", mock.Anything, mock.Anything)
}

func TestReleaseRequest(t *testing.T) {
	releaser := new(MockReleaser)
	r := newAdmin(new(MockClaimantFinder), releaser)

	requestID := uuid.New()
	releaser.On("Release", mock.Anything, requestID, uuid.Nil, events.ReasonAdminRelease).Return(true, nil)

	w := postJSON(r, "/api/v1/requests/"+requestID.String()+"/release", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp ReleaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Released)
	releaser.AssertExpectations(t)
}

func TestReleaseRequest_NotFound(t *testing.T) {
	releaser := new(MockReleaser)
	r := newAdmin(new(MockClaimantFinder), releaser)

	requestID := uuid.New()
	releaser.On("Release", mock.Anything, requestID, uuid.Nil, events.ReasonAdminRelease).Return(false, nil)

	w := postJSON(r, "/api/v1/requests/"+requestID.String()+"/release", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RequestNotFound")
}
