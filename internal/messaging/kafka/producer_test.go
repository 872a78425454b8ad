package kafka

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grocery-oms/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, log.WithField("component", "kafka-producer-test"))

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicUserNotifications {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "ORD-1A2B3C4D" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})

	event := NewNotificationEvent(domain.Notification{
		Kind:        domain.NotificationOrderPlaced,
		Channel:     domain.ChannelUser,
		OrderID:     "order-1",
		OrderNumber: "ORD-1A2B3C4D",
	})

	if err := producer.PublishEvent(TopicUserNotifications, "ORD-1A2B3C4D", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicOrderEvents, "order-1", map[string]string{"status": "PENDING"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	if err := producer.PublishEvent(TopicOrderEvents, "order-1", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewNotificationEvent_PublicTrackingHidesUser(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := domain.Notification{
		Kind:        domain.NotificationStatusChanged,
		Channel:     domain.ChannelPublicTracking,
		OrderID:     "order-1",
		OrderNumber: "ORD-1",
		UserID:      "testuser",
		Status:      domain.OrderStatusConfirmed,
		OccurredAt:  occurred,
	}

	event := NewNotificationEvent(n)
	if event.UserID != "" {
		t.Fatalf("public tracking must not expose user id, got %q", event.UserID)
	}
	if !event.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected timestamp %v", event.OccurredAt)
	}

	n.Channel = domain.ChannelUser
	if NewNotificationEvent(n).UserID != "testuser" {
		t.Fatal("user channel must keep user id")
	}
}

func TestNewNotificationEvent_FillsTimestamp(t *testing.T) {
	event := NewNotificationEvent(domain.Notification{Kind: domain.NotificationCancelled})
	if event.OccurredAt.IsZero() || time.Since(event.OccurredAt) > time.Second {
		t.Fatalf("timestamp should be close to now, got %v", event.OccurredAt)
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["kind"] != "CANCELLED" {
		t.Fatalf("unexpected kind %v", decoded["kind"])
	}
}

func TestTopicForChannel(t *testing.T) {
	cases := map[domain.NotificationChannel]string{
		domain.ChannelUser:            TopicUserNotifications,
		domain.ChannelPublicTracking:  TopicPublicTracking,
		domain.ChannelDeliveryPartner: TopicDeliveryPartner,
	}
	for channel, want := range cases {
		got, ok := TopicForChannel(channel)
		if !ok || got != want {
			t.Fatalf("%s: got %q ok=%v, want %q", channel, got, ok, want)
		}
	}
	if _, ok := TopicForChannel("sms"); ok {
		t.Fatal("unknown channel must not resolve")
	}
}

func TestProducer_PublishNotification_RoutesByChannel(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := NewProducerFromSync(mockProducer, nil)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicDeliveryPartner {
			return errors.New("unexpected topic " + msg.Topic)
		}
		for _, h := range msg.Headers {
			if string(h.Key) == HeaderChannel && string(h.Value) == string(domain.ChannelDeliveryPartner) {
				return nil
			}
		}
		return errors.New("channel header missing")
	})

	err := producer.PublishNotification(domain.Notification{
		Kind:        domain.NotificationDeliveryUpdate,
		Channel:     domain.ChannelDeliveryPartner,
		OrderID:     "order-1",
		OrderNumber: "ORD-1",
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := producer.PublishNotification(domain.Notification{Channel: "sms"}); err == nil {
		t.Fatal("expected error for unknown channel")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
