package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key   string
	value []byte
}

type fakePublisher struct {
	messages []published
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{key: key, value: value})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeNotifier struct {
	chatID string
	text   string
	err    error
}

func (n *fakeNotifier) SendMessage(_ context.Context, chatID, text string) error {
	n.chatID, n.text = chatID, text
	return n.err
}

type memoryQueue struct {
	tasks []*Task
}

func (q *memoryQueue) Publish(_ context.Context, task *Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *memoryQueue) Subscribe(context.Context, func(*Task) error) error { return nil }
func (q *memoryQueue) Close() error                                       { return nil }

func eventTask(name entity.EventName) *Task {
	return &Task{
		ID:   "task-1",
		Type: TaskTypeLifecycleEvent,
		Data: map[string]interface{}{
			"event":          string(name),
			"booking_id":     "b-1",
			"payment_id":     "p-1",
			"user_id":        "u-1",
			"actor_id":       "u-1",
			"payment_status": "PAID",
			"amount":         "2700000",
			"occurred_at":    "2026-06-01T10:00:00Z",
		},
	}
}

func TestHandleLifecycleEvent_PublishesKeyedByBooking(t *testing.T) {
	events := &fakePublisher{}
	h := NewTaskHandler(events, nil, nil, "")

	require.NoError(t, h.HandleTask(eventTask(entity.EventPaymentCreated)))

	require.Len(t, events.messages, 1)
	assert.Equal(t, "b-1", events.messages[0].key)

	var ev entity.LifecycleEvent
	require.NoError(t, json.Unmarshal(events.messages[0].value, &ev))
	assert.Equal(t, entity.EventPaymentCreated, ev.Name)
	assert.Equal(t, "p-1", ev.PaymentID)
	assert.Equal(t, entity.PaymentStatusPaid, ev.PaymentStatus)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)))
}

func TestHandleLifecycleEvent_FansOutNotification(t *testing.T) {
	tests := []struct {
		name       string
		event      entity.EventName
		wantNotify bool
	}{
		{"payment confirmed", entity.EventPaymentConfirmed, true},
		{"payment refunded", entity.EventPaymentRefunded, true},
		{"booking cancelled", entity.EventBookingCancelled, true},
		{"booking created", entity.EventBookingCreated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &memoryQueue{}
			h := NewTaskHandler(&fakePublisher{}, q, &fakeNotifier{}, "-100500")

			require.NoError(t, h.HandleTask(eventTask(tt.event)))

			if !tt.wantNotify {
				assert.Empty(t, q.tasks)
				return
			}
			require.Len(t, q.tasks, 1)
			assert.Equal(t, TaskTypeSendNotification, q.tasks[0].Type)
			assert.Equal(t, "task-1:notify", q.tasks[0].ID)
			assert.Equal(t, "-100500", q.tasks[0].GetString("chat_id"))
			assert.Contains(t, q.tasks[0].GetString("text"), "b-1")
		})
	}
}

func TestHandleLifecycleEvent_Errors(t *testing.T) {
	t.Run("broker failure is retryable", func(t *testing.T) {
		h := NewTaskHandler(&fakePublisher{err: errors.New("leader not available")}, nil, nil, "")

		err := h.HandleTask(eventTask(entity.EventBookingCreated))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPermanent)
	})

	t.Run("payload without booking is permanent", func(t *testing.T) {
		h := NewTaskHandler(&fakePublisher{}, nil, nil, "")

		err := h.HandleTask(&Task{ID: "x", Type: TaskTypeLifecycleEvent, Data: map[string]interface{}{"event": "booking.created"}})
		assert.ErrorIs(t, err, ErrPermanent)
	})

	t.Run("unknown task type is permanent", func(t *testing.T) {
		h := NewTaskHandler(&fakePublisher{}, nil, nil, "")

		err := h.HandleTask(&Task{ID: "x", Type: "send_email"})
		assert.ErrorIs(t, err, ErrPermanent)
	})
}

func TestHandleSendNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	h := NewTaskHandler(&fakePublisher{}, nil, notifier, "42")

	err := h.HandleTask(&Task{
		ID:   "n-1",
		Type: TaskTypeSendNotification,
		Data: map[string]interface{}{"chat_id": "42", "text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", notifier.chatID)
	assert.Equal(t, "hello", notifier.text)

	err = h.HandleTask(&Task{ID: "n-2", Type: TaskTypeSendNotification, Data: map[string]interface{}{"chat_id": "42"}})
	assert.ErrorIs(t, err, ErrPermanent)

	noNotifier := NewTaskHandler(&fakePublisher{}, nil, nil, "")
	err = noNotifier.HandleTask(&Task{ID: "n-3", Type: TaskTypeSendNotification, Data: map[string]interface{}{"chat_id": "42", "text": "hi"}})
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestNotificationText(t *testing.T) {
	text := NotificationText(&entity.LifecycleEvent{
		Name:          entity.EventPaymentConfirmed,
		BookingID:     "b-1",
		PaymentID:     "p-1",
		Amount:        "2700000",
		PaymentStatus: entity.PaymentStatusPaid,
		OccurredAt:    time.Date(2026, 6, 1, 10, 5, 0, 0, time.UTC),
	})

	assert.Contains(t, text, "Оплата получена")
	assert.Contains(t, text, "Бронирование: b-1")
	assert.Contains(t, text, "Платеж: p-1")
	assert.Contains(t, text, "Сумма: 2700000")
	assert.Contains(t, text, "Время: 01.06.2026 10:05")
	assert.NotContains(t, text, "Причина")
}
