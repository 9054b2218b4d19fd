package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Producer wraps a Kafka producer used for both job dispatch and progress
// event fan-out (§3, §C2 Ownership: progress events are a best-effort
// external publish, never load-bearing for resume).
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a producer writing to topic across brokers.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka producer initialized")

	return &Producer{writer: writer, topic: topic}
}

// PublishJob dispatches a job for processing.
func (p *Producer) PublishJob(ctx context.Context, msg JobDispatchMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka: marshal job dispatch message: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.JobID), Value: data}); err != nil {
		return fmt.Errorf("kafka: write job dispatch message: %w", err)
	}

	log.Info().Str("job_id", msg.JobID).Str("topic", p.topic).Msg("Job dispatched")
	return nil
}

// Publish publishes one progress event. It implements progress.Publisher:
// best-effort and never blocks the caller on a slow broker beyond the
// write call itself, and any failure is only logged, never returned,
// since a lost progress event must never affect job correctness.
func (p *Producer) Publish(ctx context.Context, jobID, event, detail string) {
	data, err := json.Marshal(ProgressMessage{JobID: jobID, Event: event, Detail: detail})
	if err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("kafka: marshal progress message failed")
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(jobID), Value: data}); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("kafka: publish progress event failed")
	}
}

// Close closes the producer.
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}
