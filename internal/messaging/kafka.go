package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/internal/validation"
	"github.com/temcen/shoprec/pkg/models"
)

// InteractionRecorder receives interaction events. The recommendation engine
// implements it.
type InteractionRecorder interface {
	RecordView(ctx context.Context, userID string, productID int64) error
	RecordPurchase(ctx context.Context, userID string, productID int64, categoryID *int64) error
	RecordRating(ctx context.Context, userID string, productID int64, rating int) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrUnknownEventType is returned for events whose type has no recorder.
var ErrUnknownEventType = errors.New("unknown interaction event type")

// ApplyEvent routes one event to the matching recorder method.
func ApplyEvent(ctx context.Context, r InteractionRecorder, event models.InteractionEvent) error {
	switch event.Type {
	case models.InteractionView:
		return r.RecordView(ctx, event.UserID, event.ProductID)
	case models.InteractionPurchase:
		return r.RecordPurchase(ctx, event.UserID, event.ProductID, event.CategoryID)
	case models.InteractionRating:
		return r.RecordRating(ctx, event.UserID, event.ProductID, event.Rating)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, services.ErrInvalidRating) ||
		errors.Is(err, services.ErrMissingUserID) ||
		errors.Is(err, services.ErrMissingProductID)
}

func stampEvent(event *models.InteractionEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
}

// EventPublisher writes interaction events to the interactions topic, keyed
// by user so a user's events stay ordered within a partition.
type EventPublisher struct {
	writer messageWriter
	topic  string
	logger *logrus.Logger
}

func NewEventPublisher(cfg *config.Config, logger *logrus.Logger) *EventPublisher {
	topic := cfg.Kafka.Topics.UserInteractions
	return newEventPublisher(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}, topic, logger)
}

func newEventPublisher(writer messageWriter, topic string, logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{writer: writer, topic: topic, logger: logger}
}

// Submit publishes the event and returns its id.
func (p *EventPublisher) Submit(ctx context.Context, event models.InteractionEvent) (string, error) {
	stampEvent(&event)

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "timestamp", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to publish interaction event")
		return "", fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"type":     event.Type,
		"user_id":  event.UserID,
		"topic":    p.topic,
	}).Debug("Interaction event published")

	return event.EventID, nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

var _ InteractionRecorder = (*services.Engine)(nil)

// DirectSink applies events in process, for deployments without Kafka.
type DirectSink struct {
	recorder InteractionRecorder
}

func NewDirectSink(recorder InteractionRecorder) *DirectSink {
	return &DirectSink{recorder: recorder}
}

func (s *DirectSink) Submit(ctx context.Context, event models.InteractionEvent) (string, error) {
	stampEvent(&event)
	if err := ApplyEvent(ctx, s.recorder, event); err != nil {
		return "", err
	}
	return event.EventID, nil
}

// EventConsumer applies events from the interactions topic to the profile
// store. Payloads failing the schema go straight to the DLQ; handler
// failures are retried with exponential backoff first.
type EventConsumer struct {
	reader    messageReader
	dlq       messageWriter
	recorder  InteractionRecorder
	validator *validation.SchemaValidator
	topic     string
	attempts  int
	baseDelay time.Duration
	logger    *logrus.Logger
}

func NewEventConsumer(
	cfg *config.Config,
	recorder InteractionRecorder,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *EventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topics.UserInteractions,
		GroupID:        cfg.Kafka.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.UserInteractionsDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	c := newEventConsumer(reader, dlq, recorder, validator, logger)
	c.topic = cfg.Kafka.Topics.UserInteractions
	if cfg.Kafka.MaxRetries > 0 {
		c.attempts = cfg.Kafka.MaxRetries
	}
	if cfg.Kafka.RetryDelay > 0 {
		c.baseDelay = cfg.Kafka.RetryDelay
	}
	return c
}

func newEventConsumer(
	reader messageReader,
	dlq messageWriter,
	recorder InteractionRecorder,
	validator *validation.SchemaValidator,
	logger *logrus.Logger,
) *EventConsumer {
	return &EventConsumer{
		reader:    reader,
		dlq:       dlq,
		recorder:  recorder,
		validator: validator,
		topic:     "user-interactions",
		attempts:  3,
		baseDelay: time.Second,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled. Offsets are committed once a message
// has been applied or dead-lettered.
func (c *EventConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WithError(err).Error("Failed to read message from Kafka")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.baseDelay):
			}
			continue
		}

		if err := c.HandleMessage(ctx, msg); err != nil {
			// Not committed, so the message is redelivered
			c.logger.WithError(err).WithField("offset", msg.Offset).Error("Failed to handle interaction event")
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).WithField("offset", msg.Offset).Warn("Failed to commit offset")
		}
	}
}

// HandleMessage applies one message. It returns an error only when the
// message could be neither applied nor dead-lettered.
func (c *EventConsumer) HandleMessage(ctx context.Context, msg kafka.Message) error {
	if result := c.validator.ValidateInteractionEvent(msg.Value); !result.Valid {
		return c.sendToDLQ(ctx, msg, result.Err(), 0)
	}

	var event models.InteractionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return c.sendToDLQ(ctx, msg, fmt.Errorf("failed to unmarshal event: %w", err), 0)
	}

	attempts, err := c.processWithRetry(ctx, event)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.sendToDLQ(ctx, msg, err, attempts)
}

func (c *EventConsumer) processWithRetry(ctx context.Context, event models.InteractionEvent) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-2))
			c.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying interaction event")

			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = ApplyEvent(ctx, c.recorder, event)
		if lastErr == nil {
			c.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"type":     event.Type,
				"user_id":  event.UserID,
				"attempt":  attempt,
			}).Debug("Interaction event applied")
			return attempt, nil
		}

		c.logger.WithError(lastErr).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  attempt,
		}).Warn("Interaction event processing failed")

		if permanent(lastErr) {
			return attempt, lastErr
		}
	}
	return c.attempts, fmt.Errorf("max retries exceeded: %w", lastErr)
}

type deadLetter struct {
	OriginalMessage json.RawMessage `json:"original_message,omitempty"`
	OriginalText    string          `json:"original_text,omitempty"`
	Error           string          `json:"error"`
	Attempts        int             `json:"attempts"`
	DLQTimestamp    time.Time       `json:"dlq_timestamp"`
}

func (c *EventConsumer) sendToDLQ(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	letter := deadLetter{
		Error:        cause.Error(),
		Attempts:     attempts,
		DLQTimestamp: time.Now().UTC(),
	}
	if json.Valid(msg.Value) {
		letter.OriginalMessage = msg.Value
	} else {
		letter.OriginalText = string(msg.Value)
	}

	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	dlqMessage := kafka.Message{
		Key:   msg.Key,
		Value: payload,
		Headers: []kafka.Header{
			{Key: "original_topic", Value: []byte(c.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	}

	if err := c.dlq.WriteMessages(ctx, dlqMessage); err != nil {
		return fmt.Errorf("failed to write message to DLQ: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"offset":   msg.Offset,
		"attempts": attempts,
		"error":    cause.Error(),
	}).Warn("Interaction event sent to DLQ")

	return nil
}

func (c *EventConsumer) Close() error {
	var errs []error
	if err := c.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := c.dlq.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}
	return errors.Join(errs...)
}
