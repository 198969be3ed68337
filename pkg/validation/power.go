package validation

import (
	"context"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/batterystats"
	"github.com/charlie0129/statsval/pkg/statsd"
)

// Names of the power checks.
const (
	CheckPowerUse      = "power-use"
	CheckPowerBlameUID = "power-blame-uid"
)

// runPowerWorkload samples atomID through a gauge metric around the CPU
// workload. It returns the sampled atoms and the BatteryStats snapshot taken
// when the sample was triggered.
func runPowerWorkload(ctx context.Context, s *Suite, atomID int32) ([]statsd.Atom, *batterystats.Snapshot, error) {
	disabled, err := s.dev.StatsdDisabled(ctx)
	if err != nil {
		return nil, nil, err
	}
	if disabled {
		return nil, nil, Skipf("statsd is disabled")
	}
	if err := requireFeature(ctx, s.dev, adb.FeatureLeanbackOnly, false); err != nil {
		return nil, nil, err
	}

	var baseline *batterystats.Snapshot
	if s.opts.Baseline {
		if baseline, err = s.bs.Snapshot(ctx); err != nil {
			return nil, nil, err
		}
	} else if err := s.dev.ResetBatteryStats(ctx); err != nil {
		return nil, nil, err
	}
	if err := s.dev.UnplugDevice(ctx); err != nil {
		return nil, nil, err
	}

	cfg := statsd.NewConfig(s.statsd.ConfigID(), s.opts.DevicePackage)
	statsd.AddGaugeAtom(cfg, atomID)
	if err := s.statsd.UploadConfig(ctx, cfg); err != nil {
		return nil, nil, err
	}
	if err := s.dev.UnplugDevice(ctx); err != nil {
		return nil, nil, err
	}

	if err := sleep(ctx, s.opts.Timing.Long); err != nil {
		return nil, nil, err
	}
	if err := s.dev.RunInstrumentation(ctx, s.opts.DevicePackage, s.opts.DeviceTestClass,
		s.opts.DeviceTestMethod, s.opts.InstrumentationRunner); err != nil {
		return nil, nil, err
	}
	if err := sleep(ctx, s.opts.Timing.Long); err != nil {
		return nil, nil, err
	}

	if err := s.statsd.SetAppBreadcrumbPredicate(ctx); err != nil {
		return nil, nil, err
	}
	snap, err := s.bs.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	if baseline != nil {
		snap = batterystats.Delta(snap, baseline)
	}
	if err := sleep(ctx, s.opts.Timing.Long); err != nil {
		return nil, nil, err
	}
	atoms, err := s.statsd.GaugeAtoms(ctx)
	if err != nil {
		return nil, nil, err
	}
	return atoms, snap, nil
}

func checkPowerUse(ctx context.Context, s *Suite) (*Measurement, error) {
	atoms, snap, err := runPowerWorkload(ctx, s, statsd.AtomDeviceCalculatedPowerUse)
	if err != nil {
		return nil, err
	}

	if len(atoms) == 0 || atoms[0].PowerUse == nil {
		return nil, Failf("Statsd: No power use atom reported.")
	}
	m := &Measurement{
		Statsd:       float64(atoms[0].PowerUse.ComputedPowerMilliAmpHours),
		BatteryStats: snap.ComputedPowerMah,
	}
	if !(m.Statsd > 0) {
		return m, Failf("Statsd: Non-positive power value.")
	}
	if !(m.BatteryStats > 0) {
		return m, Failf("BatteryStats: Non-positive power value.")
	}
	return m, WithinFraction(m.Statsd, m.BatteryStats, s.opts.AllowedFractionalDifference)
}

func checkPowerBlameUID(ctx context.Context, s *Suite) (*Measurement, error) {
	atoms, snap, err := runPowerWorkload(ctx, s, statsd.AtomDeviceCalculatedPowerBlameUID)
	if err != nil {
		return nil, err
	}
	uid, err := s.dev.PackageUID(ctx, s.opts.DevicePackage)
	if err != nil {
		return nil, err
	}

	m := &Measurement{}
	found := false
	for _, a := range atoms {
		if a.PowerBlameUID == nil || a.PowerBlameUID.UID != uid {
			continue
		}
		if found {
			return nil, Failf("Found multiple power values for uid %d", uid)
		}
		found = true
		m.Statsd = float64(a.PowerBlameUID.PowerMilliAmpHours)
	}
	if !found {
		return nil, Failf("Statsd: No power value for uid %d", uid)
	}
	if !(m.Statsd > 0) {
		return m, Failf("Statsd: Non-positive power value for uid %d", uid)
	}

	bs, ok := snap.UID(uid)
	if !ok {
		return m, Failf("Batterystats: No power value for uid %d", uid)
	}
	m.BatteryStats = bs
	if !(bs > 0) {
		return m, Failf("BatteryStats: Non-positive power value for uid %d", uid)
	}
	return m, withinFraction(m.Statsd, m.BatteryStats, s.opts.AllowedFractionalDifference, ".")
}
