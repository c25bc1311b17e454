package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"products-stocks-telegram/internal/config"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer   sarama.SyncProducer
	logger     *zap.Logger
	topicStock string
	topicFixed string
	maxRetries int
	baseDelay  time.Duration
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(cfg *config.Config, logger *zap.Logger) (*KafkaEventPublisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.KafkaClientID
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Retry.Max = cfg.KafkaRetries
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1

	switch cfg.KafkaAcks {
	case "0":
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case "1":
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	}
	// the idempotent producer refuses anything weaker than all
	if saramaCfg.Producer.RequiredAcks != sarama.WaitForAll {
		saramaCfg.Producer.Idempotent = false
	} else {
		saramaCfg.Version = sarama.V2_1_0_0
	}

	producer, err := sarama.NewSyncProducer(cfg.KafkaBrokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return newKafkaEventPublisher(producer, cfg, logger), nil
}

func newKafkaEventPublisher(producer sarama.SyncProducer, cfg *config.Config, logger *zap.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:   producer,
		logger:     logger,
		topicStock: cfg.KafkaTopicStock,
		topicFixed: cfg.KafkaTopicFixed,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
	}
}

// Publish publishes an event to Kafka with retries and exponential backoff
func (p *KafkaEventPublisher) Publish(ctx context.Context, event Event) error {
	topic, err := p.topicFor(event)
	if err != nil {
		return fmt.Errorf("failed to determine topic: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.PartitionKey()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.EventType())},
			{Key: []byte("event-id"), Value: []byte(uuid.New().String())},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		partition, offset, err := p.producer.SendMessage(message)
		if err == nil {
			p.logger.Info("Event published to Kafka",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Int64("offset", offset),
				zap.String("event-type", event.EventType()),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}

		p.logger.Warn("Failed to publish event to Kafka, retrying",
			zap.String("topic", topic),
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", p.maxRetries),
		)

		if attempt < p.maxRetries-1 {
			delay := p.baseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("failed to publish event to Kafka after %d attempts", p.maxRetries)
}

// Close closes the Kafka producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// topicFor routes lifecycle events to the stock topic and claim churn to the fixed topic
func (p *KafkaEventPublisher) topicFor(event Event) (string, error) {
	switch event.(type) {
	case StockRequestCreatedEvent, StockRequestCompletedEvent:
		return p.topicStock, nil
	case StockRequestFixedEvent, StockRequestReleasedEvent:
		return p.topicFixed, nil
	default:
		return "", fmt.Errorf("unknown event type: %T", event)
	}
}
