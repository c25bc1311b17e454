package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"products-stocks-telegram/internal/dispatch"
	"products-stocks-telegram/internal/notify"
	"products-stocks-telegram/internal/telegram"
	"products-stocks-telegram/pkg/errors"
	"products-stocks-telegram/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const updateTTL = 24 * time.Hour

// EventHandler turns an operator event into notifications
type EventHandler interface {
	Handle(ctx context.Context, ev dispatch.Event) ([]notify.Notification, error)
}

// Transport is the chat side of the webhook
type Transport interface {
	notify.Notifier
	LastMessage(ctx context.Context, chatID int64) int
	AnswerCallback(ctx context.Context, callbackID string) error
}

// TelegramHandler receives Bot API updates
type TelegramHandler struct {
	events    EventHandler
	transport Transport
	updates   middleware.RequestIDStore
	logger    *zap.Logger
}

// NewTelegramHandler creates a new webhook handler. Processed update ids are kept in
// updates so redelivered updates are acknowledged without side effects.
func NewTelegramHandler(events EventHandler, transport Transport, updates middleware.RequestIDStore, logger *zap.Logger) *TelegramHandler {
	return &TelegramHandler{
		events:    events,
		transport: transport,
		updates:   updates,
		logger:    logger,
	}
}

// Webhook handles POST /telegram/webhook
// @Summary      Telegram webhook
// @Description  Receives Bot API updates: operator messages and inline button callbacks.
// @Description  Updates are deduplicated by update_id for 24 hours.
// @Tags         telegram
// @Accept       json
// @Produce      json
// @Param        X-Telegram-Bot-Api-Secret-Token  header    string           false  "Webhook secret"
// @Param        update                           body      telegram.Update  true   "Bot API update"
// @Success      200  {object}  WebhookResponse
// @Failure      400  {object}  errors.StandardError
// @Failure      401  {object}  errors.StandardError
// @Failure      500  {object}  errors.StandardError
// @Failure      503  {object}  errors.StandardError
// @Router       /telegram/webhook [post]
func (h *TelegramHandler) Webhook(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		h.logger.Warn("Invalid update", zap.Error(err))
		c.Error(errors.NewInvalidRequest("invalid update", err.Error()))
		c.Abort()
		return
	}

	ctx := c.Request.Context()
	key := "telegram:update:" + strconv.FormatInt(update.UpdateID, 10)

	seen, err := h.updates.Exists(ctx, key)
	if err != nil {
		h.logger.Warn("Update dedup lookup failed", zap.Error(err))
	}
	if seen {
		h.logger.Debug("Duplicate update", zap.Int64("update_id", update.UpdateID))
		c.JSON(http.StatusOK, WebhookResponse{OK: true, Duplicate: true})
		return
	}

	ev, callbackID, ok := h.toEvent(ctx, update)
	if !ok {
		c.JSON(http.StatusOK, WebhookResponse{OK: true})
		return
	}
	if callbackID != "" {
		if err := h.transport.AnswerCallback(ctx, callbackID); err != nil {
			h.logger.Debug("Failed to answer callback", zap.Error(err))
		}
	}

	notifications, err := h.events.Handle(ctx, ev)
	if err != nil {
		h.logger.Error("Failed to handle update",
			zap.Int64("update_id", update.UpdateID),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
		c.Error(errors.NewInternalError("failed to handle update", err))
		c.Abort()
		return
	}

	for _, n := range notifications {
		if n.Empty() {
			continue
		}
		if err := h.transport.Notify(ctx, n); err != nil {
			h.logger.Error("Failed to deliver notification",
				zap.Int64("chat_id", n.ChatID),
				zap.Error(err),
			)
			c.Error(errors.NewTransportError(err))
			c.Abort()
			return
		}
	}

	if err := h.updates.Store(ctx, key, []byte("1"), updateTTL); err != nil {
		h.logger.Warn("Failed to remember update", zap.Error(err))
	}

	c.JSON(http.StatusOK, WebhookResponse{OK: true})
}

func (h *TelegramHandler) toEvent(ctx context.Context, update telegram.Update) (dispatch.Event, string, bool) {
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		q := update.CallbackQuery
		key, payload := notify.ParseCallbackData(q.Data)
		return dispatch.Event{
			ChatID:        q.Message.Chat.ID,
			MessageID:     q.Message.MessageID,
			LastMessageID: h.transport.LastMessage(ctx, q.Message.Chat.ID),
			Action:        key,
			Payload:       payload,
		}, q.ID, true

	case update.Message != nil && update.Message.Text != "":
		m := update.Message
		return dispatch.Event{
			ChatID:        m.Chat.ID,
			MessageID:     m.MessageID,
			LastMessageID: h.transport.LastMessage(ctx, m.Chat.ID),
			Text:          m.Text,
		}, "", true
	}
	return dispatch.Event{}, "", false
}
