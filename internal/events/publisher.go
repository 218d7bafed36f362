package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/KaranSingh0790/Cupid-s-Arrow/internal/models"
	aws_pkg "github.com/KaranSingh0790/Cupid-s-Arrow/pkg/aws"
	"github.com/segmentio/kafka-go"
)

// Publisher mirrors lifecycle events to the configured bus.
type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent) error
	Close() error
}

// snsTypedPublisher is implemented by aws_pkg.SNSClient.
type snsTypedPublisher interface {
	PublishWithType(ctx context.Context, topicArn, eventType string, message []byte) error
}

// SNSPublisher publishes events to an SNS topic with an event_type attribute.
type SNSPublisher struct {
	client   snsTypedPublisher
	topicARN string
}

func NewSNSPublisher(client snsTypedPublisher, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.client.PublishWithType(ctx, p.topicARN, event.EventType, b)
}

func (p *SNSPublisher) Close() error { return nil }

var _ snsTypedPublisher = (*aws_pkg.SNSClient)(nil)

// messageWriter is implemented by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by experience id so one experience's
// events stay on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.ExperienceID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to send kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops events. Used when EVENTS_BACKEND=none.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, models.LifecycleEvent) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }
