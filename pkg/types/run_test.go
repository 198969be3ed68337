package types

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/statsval/pkg/validation"
)

func TestRunFinish(t *testing.T) {
	tests := []struct {
		name    string
		devices []validation.DeviceResults
		err     error
		want    RunState
	}{
		{
			name: "all pass or skip",
			devices: []validation.DeviceResults{{Results: []validation.Result{
				{Status: validation.StatusPass}, {Status: validation.StatusSkip},
			}}},
			want: RunPassed,
		},
		{
			name: "one fail",
			devices: []validation.DeviceResults{
				{Results: []validation.Result{{Status: validation.StatusPass}}},
				{Results: []validation.Result{{Status: validation.StatusFail}}},
			},
			want: RunFailed,
		},
		{
			name: "error beats fail",
			devices: []validation.DeviceResults{{Results: []validation.Result{
				{Status: validation.StatusFail}, {Status: validation.StatusError},
			}}},
			want: RunErrored,
		},
		{
			name:    "device error",
			devices: []validation.DeviceResults{{Error: "install failed"}},
			want:    RunErrored,
		},
		{
			name: "run error",
			err:  errors.New("no devices"),
			want: RunErrored,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Run{State: RunRunning, Devices: tt.devices}
			r.Finish(tt.err)
			if r.State != tt.want {
				t.Errorf("State = %s, want %s", r.State, tt.want)
			}
			if r.End == nil {
				t.Error("End not set")
			}
		})
	}
}

func TestRunCounts(t *testing.T) {
	r := &Run{Devices: []validation.DeviceResults{
		{Results: []validation.Result{{Status: validation.StatusPass}, {Status: validation.StatusFail}}},
		{Results: []validation.Result{{Status: validation.StatusPass}}},
	}}
	want := map[string]int{"pass": 2, "fail": 1}
	if diff := cmp.Diff(want, r.Counts()); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
}
