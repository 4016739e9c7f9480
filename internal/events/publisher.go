package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"bookingcore/internal/domain"
)

const (
	TypeBookingCreated = "booking.created"
	TypeStatusChanged  = "booking.status_changed"
	TypePaymentUpdated = "booking.payment_updated"
	TypeRefundUpdated  = "booking.refund_updated"
	TypeCancellation   = "booking.cancellation_updated"
)

// Event is published after a booking mutation commits.
type Event struct {
	Type          string               `json:"type"`
	BookingID     int64                `json:"bookingId"`
	BookingNumber string               `json:"bookingNumber"`
	Status        domain.BookingStatus `json:"status"`
	Version       int64                `json:"version"`
	Actor         string               `json:"actor,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
	Data          map[string]any       `json:"data,omitempty"`
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error { return nil }
func (Nop) Close() error                               { return nil }

// KafkaPublisher writes events to one topic, keyed by booking id so a
// booking's events stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// NewKafkaPublisherWithProducer wraps an existing producer, e.g. a sarama mock.
func NewKafkaPublisherWithProducer(p sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(e.BookingID, 10)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.producer.Close() }
