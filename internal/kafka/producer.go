package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"bib-resale/internal/models"
)

// Producer publishes marketplace domain events. The topic is chosen per
// message so one writer serves every event stream.
type Producer struct {
	Writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{Writer: writer}
}

func (p *Producer) Publish(topic string, key string, value []byte) error {
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Topic: topic,
			Key:   []byte(key),
			Value: value,
		},
	)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// BibEvent is the payload shared by bib lifecycle events.
type BibEvent struct {
	Type      string            `json:"type"`
	BibID     string            `json:"bib_id"`
	EventID   string            `json:"event_id"`
	Status    models.BibStatus  `json:"status"`
	Options   map[string]string `json:"options,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func (p *Producer) PublishBibListed(topic string, bib models.Bib) error {
	return p.publishBibEvent(topic, "bib_listed", bib)
}

func (p *Producer) PublishBibSold(topic string, bib models.Bib) error {
	return p.publishBibEvent(topic, "bib_sold", bib)
}

func (p *Producer) publishBibEvent(topic, eventType string, bib models.Bib) error {
	event := BibEvent{
		Type:      eventType,
		BibID:     bib.BibID,
		EventID:   bib.EventID,
		Status:    bib.Status,
		Options:   bib.OptionValues,
		Timestamp: time.Now(),
	}
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return p.Publish(topic, bib.BibID, msgBytes)
}
