package validation_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/adb/adbtest"
	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/utils/ptr"
	"github.com/charlie0129/statsval/pkg/validation"
)

func TestOptionsFrom(t *testing.T) {
	c := config.NewFileFromConfig(&config.RawFileConfig{
		ShortWaitMillis:             ptr.To(0),
		LongWaitMillis:              ptr.To(100),
		AllowedFractionalDifference: ptr.To(0.5),
		BatteryStatsBaseline:        ptr.To(true),
	}, filepath.Join(t.TempDir(), "c.json"))

	got := validation.OptionsFrom(c)
	want := validation.DefaultOptions()
	want.Timing.Short = 0
	want.Timing.Long = 100 * time.Millisecond
	want.AllowedFractionalDifference = 0.5
	want.Baseline = true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OptionsFrom() mismatch (-want +got):\n%s", diff)
	}
}

func TestSuitesFrom(t *testing.T) {
	tests := []struct {
		name    string
		serials []string
		want    []string
	}{
		{name: "default device", want: []string{""}},
		{name: "configured", serials: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "duplicates", serials: []string{"a", "b", "a", "b"}, want: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.NewFileFromConfig(&config.RawFileConfig{Serials: tt.serials}, "")
			var got []string
			for _, s := range validation.SuitesFrom(c, adbtest.NewRunner(), nil) {
				got = append(got, s.Device().Serial())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("serials mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckDevicesReady(t *testing.T) {
	c := config.NewFileFromConfig(&config.RawFileConfig{Serials: []string{"a", "b"}}, "")

	ready := adbtest.NewRunner().On("get-state", "device\n")
	if err := validation.CheckDevicesReady(context.Background(), c, ready); err != nil {
		t.Errorf("CheckDevicesReady() error = %v", err)
	}

	offline := adbtest.NewRunner().On("-s a get-state", "device\n").On("-s b get-state", "offline\n")
	err := validation.CheckDevicesReady(context.Background(), c, offline)
	if err == nil || !strings.Contains(err.Error(), "b is offline") {
		t.Errorf("CheckDevicesReady() error = %v, want b is offline", err)
	}

	missing := adbtest.NewRunner().OnError("get-state", errors.New("adb: device 'a' not found"))
	if err := validation.CheckDevicesReady(context.Background(), c, missing); !errors.Is(err, adb.ErrDeviceNotFound) {
		t.Errorf("CheckDevicesReady() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRunDevicesDuplicateSerial(t *testing.T) {
	c := config.NewFileFromConfig(&config.RawFileConfig{
		Serials:                    []string{"a", "a"},
		ShortWaitMillis:            ptr.To(0),
		LongWaitMillis:             ptr.To(0),
		ConnectivityRestoreSeconds: ptr.To(0),
	}, "")
	r := connectivityDevice("feature:android.hardware.wifi\n", []int64{2}, 2)

	suites := validation.SuitesFrom(c, r, nil)
	if len(suites) != 1 {
		t.Fatalf("got %d suites for one device, want 1", len(suites))
	}
	drs := validation.RunDevices(context.Background(), suites, validation.CheckConnectivityStateChange)
	if len(drs) != 1 || len(drs[0].Results) != 1 {
		t.Fatalf("device results = %+v, want one result on a", drs)
	}

	updates := 0
	for _, cmd := range r.Commands() {
		if strings.Contains(cmd, "config update") {
			updates++
		}
	}
	if updates != 1 {
		t.Errorf("config uploaded %d times, want 1", updates)
	}
}
