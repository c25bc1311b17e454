package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/internal/kafka"
	"products-stocks-telegram/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Announcer notifies operators about a request that entered their queue and about
// goods arriving at their warehouse
type Announcer interface {
	Announce(ctx context.Context, request *domain.StockRequest) (int, error)
	AnnounceIncoming(ctx context.Context, number string, profile uuid.UUID) (int, error)
}

// EventProcessor stores requests announced upstream and tells the operators about them
type EventProcessor struct {
	store     repository.RequestStore
	announcer Announcer
	logger    *zap.Logger
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(store repository.RequestStore, announcer Announcer, logger *zap.Logger) *EventProcessor {
	return &EventProcessor{
		store:     store,
		announcer: announcer,
		logger:    logger,
	}
}

// ProcessEvent processes a single event
func (p *EventProcessor) ProcessEvent(ctx context.Context, eventType string, eventData []byte) error {
	switch eventType {
	case events.TypeStockRequestCreated:
		return p.processRequestCreated(ctx, eventData)
	case events.TypeStockRequestCompleted:
		return p.processRequestCompleted(ctx, eventData)
	default:
		return fmt.Errorf("%w: unknown event type %s", kafka.ErrUnprocessable, eventType)
	}
}

func (p *EventProcessor) processRequestCreated(ctx context.Context, eventData []byte) error {
	var event events.StockRequestCreatedEvent
	if err := json.Unmarshal(eventData, &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal event: %v", kafka.ErrUnprocessable, err)
	}
	if event.RequestID == uuid.Nil || event.Number == "" || event.Profile == uuid.Nil {
		return fmt.Errorf("%w: %v", kafka.ErrUnprocessable, domain.ErrInvalidRequest)
	}

	modifiedAt := event.OccurredAt.UTC()
	if modifiedAt.IsZero() {
		modifiedAt = time.Now().UTC()
	}

	request := &domain.StockRequest{
		ID:           event.RequestID,
		Number:       event.Number,
		Status:       event.Status,
		Profile:      event.Profile,
		Destination:  event.Destination,
		Comment:      event.Comment,
		DeliveryName: event.DeliveryName,
		ModifiedAt:   modifiedAt,
	}
	if kind, ok := request.Kind(); ok && kind == domain.KindMove && request.Destination == nil {
		return fmt.Errorf("%w: %v", kafka.ErrUnprocessable, domain.ErrMissingDestination)
	}

	lines := make([]repository.LineRecord, 0, len(event.Lines))
	for _, line := range event.Lines {
		lines = append(lines, repository.LineRecord{ProductID: line.ProductID, LineItem: line.LineItem})
	}

	saved, err := p.store.SaveRequest(ctx, request, lines)
	if err != nil {
		return fmt.Errorf("failed to save stock request: %w", err)
	}
	if !saved {
		p.logger.Debug("Stock request unchanged",
			zap.String("request_id", request.ID.String()),
			zap.String("number", request.Number),
		)
		return nil
	}

	for _, total := range event.Totals {
		if err := p.store.SaveStockTotal(ctx, repository.StockTotal{
			Profile:           total.Profile,
			ProductID:         total.ProductID,
			OfferValue:        total.OfferValue,
			VariationValue:    total.VariationValue,
			ModificationValue: total.ModificationValue,
			Storage:           total.Storage,
			Total:             total.Total,
		}); err != nil {
			return fmt.Errorf("failed to save stock total: %w", err)
		}
	}

	p.logger.Info("Stock request stored",
		zap.String("request_id", request.ID.String()),
		zap.String("number", request.Number),
		zap.String("status", string(request.Status)),
		zap.Int("lines", len(lines)),
	)

	// announcing is best effort
	sent, err := p.announcer.Announce(ctx, request)
	if err != nil {
		p.logger.Warn("Failed to announce stock request",
			zap.String("request_id", request.ID.String()),
			zap.Error(err),
		)
		return nil
	}
	if sent > 0 {
		p.logger.Info("Stock request announced",
			zap.String("number", request.Number),
			zap.Int("chats", sent),
		)
	}

	return nil
}

// processRequestCompleted tells the receiving warehouse that a move has arrived
func (p *EventProcessor) processRequestCompleted(ctx context.Context, eventData []byte) error {
	var event events.StockRequestCompletedEvent
	if err := json.Unmarshal(eventData, &event); err != nil {
		return fmt.Errorf("%w: failed to unmarshal event: %v", kafka.ErrUnprocessable, err)
	}
	if event.Status != domain.StatusWarehouse {
		return nil
	}

	owner := event.Owner
	if owner == uuid.Nil && event.Destination != nil {
		owner = *event.Destination
	}
	if owner == uuid.Nil {
		return fmt.Errorf("%w: %v", kafka.ErrUnprocessable, domain.ErrMissingDestination)
	}

	if _, err := p.announcer.AnnounceIncoming(ctx, event.Number, owner); err != nil {
		p.logger.Warn("Failed to announce incoming goods",
			zap.String("request_id", event.RequestID.String()),
			zap.Error(err),
		)
	}
	return nil
}
