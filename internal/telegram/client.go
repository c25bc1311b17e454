package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"products-stocks-telegram/internal/cache"
	"products-stocks-telegram/internal/notify"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	parseModeHTML  = "HTML"
	lastMessageTTL = 48 * time.Hour // bots cannot delete messages older than this
)

// APIError is a non-ok Bot API reply
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client is a Bot API client implementing notify.Notifier. It remembers the last
// message it sent to each chat so the next one can replace it.
type Client struct {
	http   *resty.Client
	token  string
	last   cache.Cache
	logger *zap.Logger
}

// NewClient creates a Bot API client against baseURL (https://api.telegram.org)
func NewClient(baseURL, token string, timeout time.Duration, last cache.Cache, logger *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   http,
		token:  token,
		last:   last,
		logger: logger,
	}
}

// Notify deletes the requested messages, then sends the text with its keyboard
func (c *Client) Notify(ctx context.Context, n notify.Notification) error {
	for _, messageID := range n.Delete {
		if err := c.DeleteMessage(ctx, n.ChatID, messageID); err != nil {
			// already gone or too old; nothing to clean up
			c.logger.Debug("Failed to delete message",
				zap.Int64("chat_id", n.ChatID),
				zap.Int("message_id", messageID),
				zap.Error(err),
			)
		}
	}

	if n.Text == "" {
		return nil
	}

	sent, err := c.SendMessage(ctx, n.ChatID, n.Text, keyboard(n))
	if err != nil {
		return err
	}
	c.remember(ctx, n.ChatID, sent.MessageID)
	return nil
}

// SendMessage posts an HTML message
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	var out apiResponse[Message]
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   parseModeHTML,
		ReplyMarkup: markup,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// DeleteMessage removes a message from a chat
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	var out apiResponse[bool]
	return c.call(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, &out)
}

// AnswerCallback stops the button's loading indicator
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	var out apiResponse[bool]
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID}, &out)
}

// LastMessage returns the id of the last message sent to chatID, 0 when unknown
func (c *Client) LastMessage(ctx context.Context, chatID int64) int {
	if c.last == nil {
		return 0
	}
	data, err := c.last.Get(ctx, lastMessageKey(chatID))
	if err != nil {
		return 0
	}
	id, _ := strconv.Atoi(string(data))
	return id
}

func (c *Client) remember(ctx context.Context, chatID int64, messageID int) {
	if c.last == nil || messageID == 0 {
		return
	}
	if err := c.last.Set(ctx, lastMessageKey(chatID), []byte(strconv.Itoa(messageID)), lastMessageTTL); err != nil {
		c.logger.Warn("Failed to remember last message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func lastMessageKey(chatID int64) string {
	return "telegram:last:" + strconv.FormatInt(chatID, 10)
}

type okResponse interface {
	ok() (bool, int, string)
}

func (r *apiResponse[T]) ok() (bool, int, string) {
	return r.OK, r.ErrorCode, r.Description
}

func (c *Client) call(ctx context.Context, method string, body interface{}, out okResponse) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(out).
		Post("/bot" + c.token + "/" + method)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	ok, code, description := out.ok()
	if !ok {
		if code == 0 {
			code = resp.StatusCode()
		}
		return &APIError{Method: method, Code: code, Description: description}
	}
	return nil
}

func keyboard(n notify.Notification) *InlineKeyboardMarkup {
	rows := n.Rows()
	if len(rows) == 0 {
		return nil
	}

	markup := &InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, a := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: a.Label, CallbackData: a.CallbackData()})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}
