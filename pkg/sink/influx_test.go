package sink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/validation"
)

func TestPoint(t *testing.T) {
	start := time.Unix(1700000000, 0)
	tests := []struct {
		name    string
		result  validation.Result
		want    []string
		notWant []string
	}{
		{
			name: "with measurement",
			result: validation.Result{
				Check:       "power-use",
				Serial:      "emulator-5554",
				Status:      validation.StatusPass,
				Start:       start,
				End:         start.Add(1500 * time.Millisecond),
				Measurement: &validation.Measurement{Statsd: 9, BatteryStats: 10},
			},
			want: []string{
				"statsval_check,check=power-use,serial=emulator-5554,status=pass ",
				"batterystats=10",
				"statsd=9",
				"ratio=0.9",
				"duration_ms=1500i",
				`run="r1"`,
				" 1700000001500000000",
			},
		},
		{
			name: "skipped",
			result: validation.Result{
				Check:  "connectivity-state-change",
				Serial: "s",
				Status: validation.StatusSkip,
				Start:  start,
				End:    start,
			},
			want:    []string{"status=skip", "duration_ms=0i"},
			notWant: []string{"statsd=", "ratio="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(Point("r1", tt.result), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q lacks %q", line, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(line, w) {
					t.Errorf("line %q contains %q", line, w)
				}
			}
		})
	}
}

func TestNewInfluxDisabled(t *testing.T) {
	if _, err := NewInflux(context.Background(), config.Influx{}); err == nil {
		t.Error("NewInflux() error = nil for empty url")
	}
}
