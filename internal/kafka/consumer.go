package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes a dispatched job. Implementations must be
// idempotent: redelivery after a crash before commit is expected, and the
// Section Orchestrator's resume logic (P1) is what makes that safe.
type MessageHandler interface {
	HandleJob(ctx context.Context, msg JobDispatchMessage) error
}

// Consumer wraps a Kafka consumer over the job-dispatch topic.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
}

// NewConsumer creates a consumer reading topic as part of groupID.
func NewConsumer(brokers []string, topic, groupID string, handler MessageHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Kafka consumer initialized")

	return &Consumer{reader: reader, handler: handler}
}

// Start consumes job-dispatch messages until ctx is cancelled. A message
// that keeps failing is retried with exponential backoff up to
// maxRetriesSkip times, then committed anyway so one poisoned job can't
// block the whole partition; the orchestrator's own job-level status
// tracking is the source of truth for whether that job ever completed.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Msg("Starting Kafka consumer")

	const (
		maxRetries     = 10
		baseDelay      = 1 * time.Second
		maxDelay       = 5 * time.Minute
		maxRetriesSkip = 50
	)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Consumer context cancelled, stopping")
			return ctx.Err()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		var lastErr error
		for attempt := 0; attempt < maxRetriesSkip; attempt++ {
			if err := c.processMessage(ctx, msg); err != nil {
				lastErr = err
				log.Error().
					Err(err).
					Str("topic", msg.Topic).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Int("attempt", attempt+1).
					Msg("Failed to process message, will retry")

				delay := baseDelay * time.Duration(1<<uint(min(attempt, maxRetries)))
				if delay > maxDelay {
					delay = maxDelay
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
					continue
				}
			}

			lastErr = nil
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
			break
		}

		if lastErr != nil {
			log.Error().
				Err(lastErr).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("Message processing failed after all retries, skipping")
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit skipped message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var dispatch JobDispatchMessage
	if err := json.Unmarshal(msg.Value, &dispatch); err != nil {
		return fmt.Errorf("kafka: unmarshal job dispatch message: %w", err)
	}

	if err := c.handler.HandleJob(ctx, dispatch); err != nil {
		return fmt.Errorf("kafka: handler error: %w", err)
	}

	log.Info().Str("job_id", dispatch.JobID).Msg("Job message processed")
	return nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
