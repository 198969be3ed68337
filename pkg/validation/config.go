package validation

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/batterystats"
	"github.com/charlie0129/statsval/pkg/config"
)

// OptionsFrom reads suite options from c.
func OptionsFrom(c config.Config) Options {
	return Options{
		DevicePackage:               c.DevicePackage(),
		DeviceTestClass:             c.DeviceTestClass(),
		DeviceTestMethod:            c.DeviceTestMethod(),
		InstrumentationRunner:       c.InstrumentationRunner(),
		APKPath:                     c.APKPath(),
		AllowedFractionalDifference: c.AllowedFractionalDifference(),
		Baseline:                    c.BatteryStatsBaseline(),
		Timing: Timing{
			Short:               c.ShortWait(),
			Long:                c.LongWait(),
			ConnectivityRestore: c.ConnectivityRestore(),
		},
	}
}

// Devices returns a Device per distinct configured serial, or the default
// device when none are configured. A serial listed twice gets one Device,
// so checks on it stay sequential.
func Devices(c config.Config, runner adb.Runner) []*adb.Device {
	serials := c.Serials()
	if len(serials) == 0 {
		serials = []string{""}
	}
	seen := make(map[string]struct{}, len(serials))
	devs := make([]*adb.Device, 0, len(serials))
	for _, s := range serials {
		if _, ok := seen[s]; ok {
			logrus.WithField("serial", s).Warn("ignoring duplicate serial")
			continue
		}
		seen[s] = struct{}{}
		devs = append(devs, adb.NewDevice(s, c.ADBPath(), runner))
	}
	return devs
}

// SuitesFrom returns one Suite per configured device.
func SuitesFrom(c config.Config, runner adb.Runner, registry *Registry) []*Suite {
	opts := OptionsFrom(c)
	source := batterystats.Source(c.BatteryStatsSource())
	var suites []*Suite
	for _, d := range Devices(c, runner) {
		suites = append(suites, NewSuite(d, source, opts, registry))
	}
	return suites
}

// CheckDevicesReady fails unless every configured device is online.
func CheckDevicesReady(ctx context.Context, c config.Config, runner adb.Runner) error {
	for _, d := range Devices(c, runner) {
		state, err := d.State(ctx)
		if err != nil {
			return err
		}
		if state != "device" {
			name := d.Serial()
			if name == "" {
				name = "default device"
			}
			return pkgerrors.Errorf("%s is %s", name, state)
		}
	}
	return nil
}
