package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/sirupsen/logrus"
)

// TaskHandler обрабатывает задачи из очереди
type TaskHandler struct {
	events   EventPublisher
	queue    Queue
	notifier Notifier
	chatID   string
	timeout  time.Duration
}

// NewTaskHandler wires the event bus and, optionally, an ops chat. queue is
// used to fan out notification tasks; notifier may be nil.
func NewTaskHandler(events EventPublisher, queue Queue, notifier Notifier, chatID string) *TaskHandler {
	return &TaskHandler{
		events:   events,
		queue:    queue,
		notifier: notifier,
		chatID:   chatID,
		timeout:  10 * time.Second,
	}
}

// HandleTask обрабатывает задачу
func (h *TaskHandler) HandleTask(task *Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	switch task.Type {
	case TaskTypeLifecycleEvent:
		return h.handleLifecycleEvent(ctx, task)
	case TaskTypeSendNotification:
		return h.handleSendNotification(ctx, task)
	default:
		return fmt.Errorf("%w: unknown task type %q", ErrPermanent, task.Type)
	}
}

// handleLifecycleEvent forwards the event to the bus keyed by booking id, so
// every event of one booking lands in the same partition.
func (h *TaskHandler) handleLifecycleEvent(ctx context.Context, task *Task) error {
	ev, err := EventFromTask(task)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", ErrPermanent, err)
	}

	if err := h.events.Publish(ctx, ev.BookingID, payload); err != nil {
		return fmt.Errorf("publish %s for booking %s: %w", ev.Name, ev.BookingID, err)
	}

	if !ev.Name.Notifiable() || h.notifier == nil || h.chatID == "" || h.queue == nil {
		return nil
	}

	// отдельная задача, чтобы сбой Telegram не переотправлял событие в шину
	notification := &Task{
		ID:   task.ID + ":notify",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{
			"chat_id": h.chatID,
			"text":    NotificationText(ev),
		},
	}
	if err := h.queue.Publish(ctx, notification); err != nil {
		logrus.WithError(err).WithField("booking_id", ev.BookingID).Warn("failed to enqueue notification")
	}
	return nil
}

func (h *TaskHandler) handleSendNotification(ctx context.Context, task *Task) error {
	if h.notifier == nil {
		return fmt.Errorf("%w: notifier is not configured", ErrPermanent)
	}

	chatID := task.GetString("chat_id")
	text := task.GetString("text")
	if chatID == "" || text == "" {
		return fmt.Errorf("%w: notification without chat_id or text", ErrPermanent)
	}

	return h.notifier.SendMessage(ctx, chatID, text)
}

// EventFromTask rebuilds the lifecycle event carried in a task payload.
func EventFromTask(task *Task) (*entity.LifecycleEvent, error) {
	name := entity.EventName(task.GetString("event"))
	bookingID := task.GetString("booking_id")
	if name == "" || bookingID == "" {
		return nil, fmt.Errorf("%w: lifecycle task %s without event or booking_id", ErrPermanent, task.ID)
	}

	return &entity.LifecycleEvent{
		Name:          name,
		BookingID:     bookingID,
		PaymentID:     task.GetString("payment_id"),
		UserID:        task.GetString("user_id"),
		ActorID:       task.GetString("actor_id"),
		Status:        entity.BookingStatus(task.GetString("status")),
		PaymentStatus: entity.BookingPaymentStatus(task.GetString("payment_status")),
		Amount:        task.GetString("amount"),
		Reason:        task.GetString("reason"),
		OccurredAt:    task.GetTime("occurred_at"),
	}, nil
}

// NotificationText renders the ops chat message for an event.
func NotificationText(ev *entity.LifecycleEvent) string {
	var b strings.Builder

	switch ev.Name {
	case entity.EventPaymentConfirmed:
		b.WriteString("💰 Оплата получена\n")
	case entity.EventPaymentRefunded:
		b.WriteString("↩️ Возврат оплаты\n")
	case entity.EventBookingCancelled:
		b.WriteString("❌ Бронирование отменено\n")
	default:
		b.WriteString(string(ev.Name) + "\n")
	}

	fmt.Fprintf(&b, "Бронирование: %s\n", ev.BookingID)
	if ev.PaymentID != "" {
		fmt.Fprintf(&b, "Платеж: %s\n", ev.PaymentID)
	}
	if ev.Amount != "" {
		fmt.Fprintf(&b, "Сумма: %s\n", ev.Amount)
	}
	if ev.PaymentStatus != "" {
		fmt.Fprintf(&b, "Статус оплаты: %s\n", ev.PaymentStatus)
	}
	if ev.Reason != "" {
		fmt.Fprintf(&b, "Причина: %s\n", ev.Reason)
	}
	if !ev.OccurredAt.IsZero() {
		fmt.Fprintf(&b, "Время: %s", ev.OccurredAt.Format("02.01.2006 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// LogPublisher writes events to the application log. It is the event bus
// when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, key string, value []byte) error {
	logrus.WithFields(logrus.Fields{
		"key":   key,
		"event": json.RawMessage(value),
	}).Info("lifecycle event")
	return nil
}

func (LogPublisher) Close() error { return nil }
