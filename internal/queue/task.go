package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task is the unit stored in the queue.
type Task struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask creates a one-off task with a fresh id.
func NewTask(kind string, payload any) (Task, error) {
	t := Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		EnqueuedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Task{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		t.Payload = raw
	}
	return t, nil
}

// RecurringTask returns the task with a stable identity for a self-rescheduling kind.
// Its encoding never changes, so scheduling it again moves the existing entry
// instead of adding a second one.
func RecurringTask(kind string) Task {
	return Task{ID: "recurring:" + kind, Kind: kind}
}

// Decode unmarshals the payload into v.
func (t Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("task %s (%s) has no payload", t.ID, t.Kind)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Kind, err)
	}
	return nil
}

func encodeTask(t Task) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTask(raw string) (Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Task{}, err
	}
	if t.Kind == "" {
		return Task{}, fmt.Errorf("task without kind")
	}
	return t, nil
}
