package validation

import (
	"context"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/batterystats"
	"github.com/charlie0129/statsval/pkg/statsd"
)

// CheckConnectivityStateChange is the name of the connectivity check.
const CheckConnectivityStateChange = "connectivity-state-change"

func checkConnectivityStateChange(ctx context.Context, s *Suite) (*Measurement, error) {
	if err := requireFeature(ctx, s.dev, adb.FeatureWifi, true); err != nil {
		return nil, err
	}
	if err := requireFeature(ctx, s.dev, adb.FeatureWatch, false); err != nil {
		return nil, err
	}

	cfg := statsd.NewConfig(s.statsd.ConfigID(), s.opts.DevicePackage)
	statsd.AddCountAtom(cfg, statsd.AtomConnectivityStateChanged)
	if err := s.statsd.UploadConfig(ctx, cfg); err != nil {
		return nil, err
	}
	if err := sleep(ctx, s.opts.Timing.Short); err != nil {
		return nil, err
	}

	var baseline *batterystats.Snapshot
	if s.opts.Baseline {
		var err error
		if baseline, err = s.bs.Snapshot(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.dev.SetAirplaneMode(ctx, true); err != nil {
		return nil, err
	}
	if err := s.dev.SetAirplaneMode(ctx, false); err != nil {
		return nil, err
	}
	if err := sleep(ctx, s.opts.Timing.ConnectivityRestore); err != nil {
		return nil, err
	}

	snap, err := s.bs.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if baseline != nil {
		snap = batterystats.Delta(snap, baseline)
	}
	data, err := s.statsd.CountMetricData(ctx)
	if err != nil {
		return nil, err
	}

	if len(data) != 1 {
		return nil, Failf("expected 1 count metric data, got %d", len(data))
	}
	if len(data[0].Buckets) != 1 {
		return nil, Failf("expected 1 bucket, got %d", len(data[0].Buckets))
	}
	count := data[0].Buckets[0].Count
	m := &Measurement{Statsd: float64(count), BatteryStats: float64(snap.NumConnectivityChanges)}
	if count <= 0 {
		return m, Failf("statsd counted %d connectivity changes, want > 0", count)
	}
	if count != snap.NumConnectivityChanges {
		return m, Failf("batterystats counted %d connectivity changes, statsd counted %d",
			snap.NumConnectivityChanges, count)
	}
	return m, nil
}

// requireFeature skips the check unless the presence of feature equals want.
func requireFeature(ctx context.Context, dev *adb.Device, feature string, want bool) error {
	ok, err := dev.CheckFeature(ctx, feature, want)
	if err != nil {
		return err
	}
	if !ok {
		if want {
			return Skipf("device lacks %s", feature)
		}
		return Skipf("device has %s", feature)
	}
	return nil
}
