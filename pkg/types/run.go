package types

import (
	"time"

	"github.com/charlie0129/statsval/pkg/validation"
)

// RunState is the lifecycle state of a validation run.
type RunState string

const (
	RunRunning RunState = "running"
	RunPassed  RunState = "passed"
	RunFailed  RunState = "failed"
	// RunErrored means the run could not execute some checks at all.
	RunErrored RunState = "error"
)

// Run is one validation run over every configured device. It is shared
// between the daemon and client packages.
type Run struct {
	ID      string                     `json:"id"`
	Trigger string                     `json:"trigger"`
	Checks  []string                   `json:"checks"`
	Serials []string                   `json:"serials"`
	State   RunState                   `json:"state"`
	Start   time.Time                  `json:"start"`
	End     *time.Time                 `json:"end,omitempty"`
	Devices []validation.DeviceResults `json:"devices,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// Results returns the results of every device.
func (r *Run) Results() []validation.Result {
	return validation.Flatten(r.Devices)
}

// Counts returns the number of results per status.
func (r *Run) Counts() map[string]int {
	counts := map[string]int{}
	for _, res := range r.Results() {
		counts[string(res.Status)]++
	}
	return counts
}

// Finish sets the end time and derives the final state.
func (r *Run) Finish(err error) {
	end := time.Now()
	r.End = &end
	if err != nil {
		r.Error = err.Error()
		r.State = RunErrored
		return
	}
	r.State = RunPassed
	for _, d := range r.Devices {
		if d.Error != "" {
			r.State = RunErrored
			return
		}
	}
	for _, res := range r.Results() {
		switch res.Status {
		case validation.StatusError:
			r.State = RunErrored
			return
		case validation.StatusFail:
			r.State = RunFailed
		}
	}
}

// TriggerRequest is the body of POST /runs.
type TriggerRequest struct {
	Checks []string `json:"checks,omitempty"`
}

// TriggerResponse is returned by POST /runs.
type TriggerResponse struct {
	RunID string `json:"runId"`
}
