package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeLifecycleEvent   TaskType = "lifecycle_event"
	TaskTypeSendNotification TaskType = "send_notification"
)

// ErrPermanent marks a handler failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent task failure")

// Task represents a unit of work in the queue
type Task struct {
	ID         string                 `json:"id"`
	Type       TaskType               `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	CreatedAt  time.Time              `json:"created_at"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
}

// Validate checks if the task is valid
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task ID is required")
	}
	if strings.TrimSpace(string(t.Type)) == "" {
		return fmt.Errorf("task type is required")
	}
	if t.Data == nil {
		t.Data = make(map[string]interface{})
	}
	return nil
}

// GetString returns a string value from task data
func (t *Task) GetString(key string) string {
	if val, ok := t.Data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetTime parses an RFC3339 timestamp from task data
func (t *Task) GetTime(key string) time.Time {
	str := t.GetString(key)
	if str == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, str); err == nil {
		return ts
	}
	return time.Time{}
}
