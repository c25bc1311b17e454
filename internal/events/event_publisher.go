package events

import (
	"context"
	"sync"
	"time"

	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event type names, carried in the event-type header
const (
	TypeStockRequestCreated   = "StockRequestCreated"
	TypeStockRequestFixed     = "StockRequestFixed"
	TypeStockRequestReleased  = "StockRequestReleased"
	TypeStockRequestCompleted = "StockRequestCompleted"
)

// Event is a domain event published to the broker
type Event interface {
	EventType() string
	// PartitionKey keeps every event of one request on one partition
	PartitionKey() string
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// StockRequestCreatedEvent is published upstream when a request enters a queue
type StockRequestCreatedEvent struct {
	RequestID    uuid.UUID      `json:"request_id"`
	Number       string         `json:"number"`
	Status       domain.Status  `json:"status"`
	Profile      uuid.UUID      `json:"profile"`
	Destination  *uuid.UUID     `json:"destination,omitempty"`
	DeliveryName string         `json:"delivery_name,omitempty"`
	Comment      string         `json:"comment,omitempty"`
	Lines        []CreatedLine  `json:"lines"`
	Totals       []CreatedTotal `json:"totals,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// CreatedLine is a product line of a created request
type CreatedLine struct {
	ProductID uuid.UUID `json:"product_id"`
	domain.LineItem
}

// CreatedTotal is a storage place snapshot shipped with a created request
type CreatedTotal struct {
	Profile           uuid.UUID `json:"profile"`
	ProductID         uuid.UUID `json:"product_id"`
	OfferValue        string    `json:"offer_value,omitempty"`
	VariationValue    string    `json:"variation_value,omitempty"`
	ModificationValue string    `json:"modification_value,omitempty"`
	Storage           string    `json:"storage"`
	Total             int       `json:"total"`
}

// StockRequestFixedEvent is published when an operator claims a request
type StockRequestFixedEvent struct {
	RequestID  uuid.UUID        `json:"request_id"`
	Kind       domain.QueueKind `json:"kind"`
	Operator   uuid.UUID        `json:"operator"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// StockRequestReleasedEvent is published when a claim is dropped
type StockRequestReleasedEvent struct {
	RequestID  uuid.UUID `json:"request_id"`
	Operator   uuid.UUID `json:"operator,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StockRequestCompletedEvent chains the request to the downstream stock workflows.
// Owner is the profile holding the goods afterwards.
type StockRequestCompletedEvent struct {
	RequestID   uuid.UUID        `json:"request_id"`
	Number      string           `json:"number"`
	Kind        domain.QueueKind `json:"kind"`
	Status      domain.Status    `json:"status"`
	Profile     uuid.UUID        `json:"profile"`
	Destination *uuid.UUID       `json:"destination,omitempty"`
	Owner       uuid.UUID        `json:"owner"`
	Operator    uuid.UUID        `json:"operator"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// Release reasons
const (
	ReasonCancelled       = "cancelled"
	ReasonForbidden       = "forbidden"
	ReasonCompletionError = "completion_failed"
	ReasonLeaseExpired    = "lease_expired"
	ReasonAdminRelease    = "admin_release"
)

func (e StockRequestCreatedEvent) EventType() string    { return TypeStockRequestCreated }
func (e StockRequestCreatedEvent) PartitionKey() string { return e.RequestID.String() }

func (e StockRequestFixedEvent) EventType() string    { return TypeStockRequestFixed }
func (e StockRequestFixedEvent) PartitionKey() string { return e.RequestID.String() }

func (e StockRequestReleasedEvent) EventType() string    { return TypeStockRequestReleased }
func (e StockRequestReleasedEvent) PartitionKey() string { return e.RequestID.String() }

func (e StockRequestCompletedEvent) EventType() string    { return TypeStockRequestCompleted }
func (e StockRequestCompletedEvent) PartitionKey() string { return e.RequestID.String() }

// InMemoryEventPublisher records events; used when Kafka is disabled and in tests
type InMemoryEventPublisher struct {
	mu     sync.Mutex
	logger *zap.Logger
	events []Event
}

// NewInMemoryEventPublisher creates a publisher that keeps events in memory
func NewInMemoryEventPublisher(logger *zap.Logger) *InMemoryEventPublisher {
	return &InMemoryEventPublisher{logger: logger}
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()

	p.logger.Debug("Event published (in-memory)",
		zap.String("event-type", event.EventType()),
		zap.String("key", event.PartitionKey()),
	)
	return nil
}

// Events returns a copy of everything published so far
func (p *InMemoryEventPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]Event(nil), p.events...)
}
