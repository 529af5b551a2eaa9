package queue

import (
	"context"
)

// Queue интерфейс очереди
type Queue interface {
	Publish(ctx context.Context, task *Task) error
	Subscribe(ctx context.Context, handler func(*Task) error) error
	Close() error
}

// EventPublisher is the outbound event bus: a kafka topic, a rabbitmq queue
// or the log.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}

// Notifier delivers a plain-text message to an ops chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}
