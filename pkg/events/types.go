package events

import "encoding/json"

// Event name constants
const (
	RunStarted  = "run.started"
	RunFinished = "run.finished"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// RunStartedEvent is the typed payload for run.started.
type RunStartedEvent struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Channels []string `json:"channels"`
	Schedule string   `json:"schedule,omitempty"`
	Ts       int64    `json:"ts"`
}

// RunFinishedEvent is the typed payload for run.finished.
type RunFinishedEvent struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.RunFinishedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.ID, payload.Code)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
