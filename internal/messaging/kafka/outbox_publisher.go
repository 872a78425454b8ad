package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka.
// Сообщение с заполненным Topic уходит в него, остальные в топик по умолчанию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	topic := event.Topic
	if topic == "" {
		topic = p.topic
	}

	envelope := OutboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.now().UTC(),
	}

	return p.producer.PublishEvent(topic, key, envelope,
		header(HeaderEventType, event.EventType),
		header(HeaderAggregateID, event.AggregateID),
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
