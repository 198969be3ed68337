package events

import "encoding/json"

// Event name constants
const (
	RunStarted    = "run.started"
	RunFinished   = "run.finished"
	CheckFinished = "check.finished"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// RunStartedEvent is the typed payload for run.started.
type RunStartedEvent struct {
	RunID   string   `json:"runId"`
	Trigger string   `json:"trigger"`
	Checks  []string `json:"checks"`
	Serials []string `json:"serials"`
	Ts      int64    `json:"ts"`
}

// RunFinishedEvent is the typed payload for run.finished.
type RunFinishedEvent struct {
	RunID  string         `json:"runId"`
	Passed bool           `json:"passed"`
	Counts map[string]int `json:"counts"`
	Error  string         `json:"error,omitempty"`
	Ts     int64          `json:"ts"`
}

// CheckFinishedEvent is the typed payload for check.finished.
type CheckFinishedEvent struct {
	RunID        string  `json:"runId"`
	Check        string  `json:"check"`
	Serial       string  `json:"serial"`
	Status       string  `json:"status"`
	Message      string  `json:"message,omitempty"`
	Statsd       float64 `json:"statsd,omitempty"`
	BatteryStats float64 `json:"batterystats,omitempty"`
	DurationMs   int64   `json:"durationMs"`
	Ts           int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CheckFinishedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Check, payload.Status)
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
