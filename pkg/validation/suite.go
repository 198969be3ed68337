package validation

import (
	"context"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/batterystats"
	"github.com/charlie0129/statsval/pkg/statsd"
)

const teardownTimeout = 30 * time.Second

// Timing holds the fixed waits used to let the device settle.
type Timing struct {
	Short               time.Duration
	Long                time.Duration
	ConnectivityRestore time.Duration
}

// DefaultTiming returns the waits used by the platform test suite.
func DefaultTiming() Timing {
	return Timing{
		Short:               500 * time.Millisecond,
		Long:                2000 * time.Millisecond,
		ConnectivityRestore: 10 * time.Second,
	}
}

// Options configures a Suite.
type Options struct {
	DevicePackage         string
	DeviceTestClass       string
	DeviceTestMethod      string
	InstrumentationRunner string
	// APKPath is installed before the first check when set.
	APKPath string
	// AllowedFractionalDifference is the tolerance for power comparisons.
	AllowedFractionalDifference float64
	// Baseline compares BatteryStats deltas over the workload instead of
	// absolute counters.
	Baseline bool
	Timing   Timing
}

// DefaultOptions returns the options of the platform test suite.
func DefaultOptions() Options {
	return Options{
		DevicePackage:               "com.android.server.cts.device.statsd",
		DeviceTestClass:             ".AtomTests",
		DeviceTestMethod:            "testSimpleCpu",
		InstrumentationRunner:       "androidx.test.runner.AndroidJUnitRunner",
		AllowedFractionalDifference: 0.8,
		Timing:                      DefaultTiming(),
	}
}

// Observer is called with every finished Result.
type Observer func(Result)

// Suite runs checks on one device. Checks never overlap.
type Suite struct {
	dev      *adb.Device
	statsd   *statsd.Service
	bs       *batterystats.Service
	opts     Options
	registry *Registry
	observer Observer
}

// NewSuite returns a Suite for dev. A nil registry means DefaultRegistry.
func NewSuite(dev *adb.Device, source batterystats.Source, opts Options, registry *Registry) *Suite {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Suite{
		dev:      dev,
		statsd:   statsd.NewService(dev, statsd.DefaultConfigID),
		bs:       batterystats.NewService(dev, source),
		opts:     opts,
		registry: registry,
	}
}

// Device returns the device under test.
func (s *Suite) Device() *adb.Device { return s.dev }

// Statsd returns the statsd service of the device.
func (s *Suite) Statsd() *statsd.Service { return s.statsd }

// BatteryStats returns the BatteryStats service of the device.
func (s *Suite) BatteryStats() *batterystats.Service { return s.bs }

// Options returns the suite options.
func (s *Suite) Options() Options { return s.opts }

// Observe sets a callback for finished results.
func (s *Suite) Observe(o Observer) { s.observer = o }

// Run runs the named checks in order, or every registered check when names
// is empty. It returns an error only for unknown names or a failed install;
// check outcomes are in the results.
func (s *Suite) Run(ctx context.Context, names ...string) ([]Result, error) {
	if len(names) == 0 {
		names = s.registry.Names()
	}
	checks := make([]Check, 0, len(names))
	for _, n := range names {
		c, ok := s.registry.Get(n)
		if !ok {
			return nil, pkgerrors.Wrapf(ErrUnknownCheck, "%q", n)
		}
		checks = append(checks, c)
	}

	if s.opts.APKPath != "" {
		if err := s.dev.Install(ctx, s.opts.APKPath); err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, s.RunCheck(ctx, c))
	}
	return results, nil
}

// RunCheck runs one check with setup and teardown.
func (s *Suite) RunCheck(ctx context.Context, c Check) Result {
	logger := logrus.WithFields(logrus.Fields{
		"serial": s.dev.Serial(),
		"check":  c.Name,
	})
	logger.Info("running check")

	r := Result{
		Check:  c.Name,
		Serial: s.dev.Serial(),
		Start:  time.Now(),
	}

	err := s.setup(ctx)
	if err == nil {
		r.Measurement, err = c.Run(ctx, s)
	}
	if terr := s.teardown(ctx); terr != nil {
		logger.WithError(terr).Warn("teardown failed")
		if err == nil {
			err = terr
		}
	}

	r.End = time.Now()
	r.Status = StatusOf(err)
	if err != nil {
		r.Message = err.Error()
	}

	logger.WithFields(logrus.Fields{
		"status":   r.Status,
		"duration": r.Duration().Round(time.Millisecond),
	}).Info("check finished")
	if r.Status == StatusError || r.Status == StatusFail {
		logger.Warn(r.Message)
	}

	if s.observer != nil {
		s.observer(r)
	}
	return r
}

func (s *Suite) setup(ctx context.Context) error {
	if err := s.dev.ResetBatteryStatus(ctx); err != nil {
		return err
	}
	if err := s.dev.UnplugDevice(ctx); err != nil {
		return err
	}
	return s.statsd.RemoveConfig(ctx)
}

// teardown runs even when ctx is already cancelled.
func (s *Suite) teardown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	err := s.dev.PlugInUSB(ctx)
	if rerr := s.statsd.RemoveConfig(ctx); err == nil {
		err = rerr
	}
	return err
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return pkgerrors.Wrap(ctx.Err(), "interrupted while waiting")
	case <-t.C:
		return nil
	}
}
