package dispatch

import (
	"context"
	"errors"
	"strings"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one inbound operator interaction
type Event struct {
	ChatID        int64
	MessageID     int    // message that carried the pressed button, or the typed message
	LastMessageID int    // previous bot message in the chat, 0 when unknown
	Action        string // callback key, empty for typed text
	Payload       string
	Text          string
}

type verb int

const (
	verbProfiles verb = iota
	verbNext
	verbDone
	verbCancel
)

type route struct {
	kind domain.QueueKind
	verb verb
}

var routes = func() map[string]route {
	m := make(map[string]route)
	for kind, k := range keys {
		m[k.profiles] = route{kind, verbProfiles}
		m[k.next] = route{kind, verbNext}
		m[k.done] = route{kind, verbDone}
		m[k.cancel] = route{kind, verbCancel}
	}
	return m
}()

// Handle routes an event to the matching coordinator call. Unknown actions and
// malformed payloads produce no notifications.
func (c *Coordinator) Handle(ctx context.Context, ev Event) ([]notify.Notification, error) {
	if ev.Action == notify.KeyDeleteMessage {
		return []notify.Notification{{ChatID: ev.ChatID, Delete: []int{ev.MessageID}}}, nil
	}

	op, err := c.ResolveOperator(ctx, ev.ChatID)
	if errors.Is(err, domain.ErrOperatorUnknown) {
		c.logger.Info("Message from unknown chat", zap.Int64("chat_id", ev.ChatID))
		return c.withDeletions(ev, []notify.Notification{{
			ChatID:  ev.ChatID,
			Text:    unknownOperator,
			Actions: []notify.Action{deleteAction()},
		}}, false), nil
	}
	if err != nil {
		return nil, err
	}

	out, err := c.route(ctx, op, ev)
	if err != nil || len(out) == 0 {
		return out, err
	}
	r, ok := routes[ev.Action]
	return c.withDeletions(ev, out, ok && r.verb == verbCancel), nil
}

func (c *Coordinator) route(ctx context.Context, op Operator, ev Event) ([]notify.Notification, error) {
	if ev.Action == "" {
		return c.routeText(ctx, op, ev.Text)
	}
	if ev.Action == notify.KeyMenu || ev.Action == "start" {
		return []notify.Notification{c.StartMenu(op)}, nil
	}

	r, ok := routes[ev.Action]
	if !ok {
		c.logger.Debug("Unknown action", zap.String("action", ev.Action))
		return nil, nil
	}
	if r.verb == verbProfiles {
		n, err := c.ProfileMenu(ctx, r.kind, op)
		return single(n, err)
	}

	id, err := uuid.Parse(ev.Payload)
	if err != nil {
		c.logger.Warn("Malformed action payload",
			zap.String("action", ev.Action),
			zap.String("payload", ev.Payload),
		)
		return nil, nil
	}

	switch r.verb {
	case verbNext:
		return single(c.RequestNext(ctx, r.kind, op, id))
	case verbDone:
		return c.OnDone(ctx, r.kind, op, id)
	case verbCancel:
		return single(c.OnCancel(ctx, r.kind, op, id))
	}
	return nil, nil
}

func (c *Coordinator) routeText(ctx context.Context, op Operator, text string) ([]notify.Notification, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "/start", "start", "/menu", "menu":
		return []notify.Notification{c.StartMenu(op)}, nil
	}

	if id, err := uuid.Parse(text); err == nil {
		return single(c.Scan(ctx, op, id))
	}
	return nil, nil
}

// withDeletions asks the transport to remove the message the operator acted on.
// On cancel the chat's previous bot message goes too when DeleteTrailingMessage is set.
func (c *Coordinator) withDeletions(ev Event, out []notify.Notification, cancel bool) []notify.Notification {
	var ids []int
	if ev.MessageID != 0 {
		ids = append(ids, ev.MessageID)
	}
	if cancel && c.options.DeleteTrailingMessage && ev.LastMessageID != 0 && ev.LastMessageID != ev.MessageID {
		ids = append(ids, ev.LastMessageID)
	}
	out[0].Delete = append(ids, out[0].Delete...)
	return out
}

func single(n notify.Notification, err error) ([]notify.Notification, error) {
	if err != nil {
		return nil, err
	}
	return []notify.Notification{n}, nil
}
