package dispatch

import (
	"context"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/notify"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Announcer tells operators that a new request entered one of their queues
type Announcer struct {
	accounts repository.AccountStore
	authz    security.Authorizer
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewAnnouncer creates a new announcer
func NewAnnouncer(accounts repository.AccountStore, authz security.Authorizer, notifier notify.Notifier, logger *zap.Logger) *Announcer {
	return &Announcer{
		accounts: accounts,
		authz:    authz,
		notifier: notifier,
		logger:   logger,
	}
}

// Announce notifies every active chat whose operator holds the queue capability on the
// request profile. Requests outside both queues are ignored. Delivery failures are
// logged per chat and do not stop the others.
func (a *Announcer) Announce(ctx context.Context, request *domain.StockRequest) (int, error) {
	kind, ok := request.Kind()
	if !ok {
		return 0, nil
	}

	sent, err := a.broadcast(ctx, request.Profile, kind.Capability(), request.Number, func(chatID int64) notify.Notification {
		return notify.Notification{
			ChatID: chatID,
			Text:   formatAnnouncement(kind, request.Number),
			Actions: []notify.Action{
				deleteAction(),
				{Label: texts[kind].announceBtn, Key: keys[kind].next, Payload: request.Profile.String()},
			},
		}
	})
	if err != nil {
		return 0, err
	}

	a.logger.Info("Request announced",
		zap.String("kind", string(kind)),
		zap.String("number", request.Number),
		zap.Int("chats", sent),
	)
	return sent, nil
}

// AnnounceIncoming tells the operators accepting goods at profile that a move arrived
func (a *Announcer) AnnounceIncoming(ctx context.Context, number string, profile uuid.UUID) (int, error) {
	sent, err := a.broadcast(ctx, profile, domain.CapabilityIncomingAccept, number, func(chatID int64) notify.Notification {
		return notify.Notification{
			ChatID:  chatID,
			Text:    formatIncoming(number),
			Actions: []notify.Action{deleteAction()},
		}
	})
	if err != nil {
		return 0, err
	}

	a.logger.Info("Incoming goods announced",
		zap.String("number", number),
		zap.String("profile", profile.String()),
		zap.Int("chats", sent),
	)
	return sent, nil
}

func (a *Announcer) broadcast(ctx context.Context, profile uuid.UUID, capability, number string, build func(chatID int64) notify.Notification) (int, error) {
	operators := a.authz.OperatorsFor(profile, capability)
	if len(operators) == 0 {
		a.logger.Debug("Nobody to announce the request to",
			zap.String("number", number),
			zap.String("profile", profile.String()),
			zap.String("capability", capability),
		)
		return 0, nil
	}

	chats, err := a.accounts.ChatsForProfiles(ctx, operators)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, chatID := range chats {
		if err := a.notifier.Notify(ctx, build(chatID)); err != nil {
			a.logger.Warn("Failed to announce request",
				zap.Int64("chat_id", chatID),
				zap.String("number", number),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}
