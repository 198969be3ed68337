package adb

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Device features used to decide whether a validation applies.
const (
	FeatureWifi         = "android.hardware.wifi"
	FeatureWatch        = "android.hardware.type.watch"
	FeatureLeanbackOnly = "android.software.leanback_only"
)

var userIDRE = regexp.MustCompile(`userId=(\d+)`)

// SetAirplaneMode turns airplane mode on or off.
func (d *Device) SetAirplaneMode(ctx context.Context, on bool) error {
	mode := "disable"
	if on {
		mode = "enable"
	}
	if _, err := d.Shell(ctx, "cmd", "connectivity", "airplane-mode", mode); err != nil {
		return pkgerrors.Wrapf(err, "failed to %s airplane mode", mode)
	}
	logrus.WithField("serial", d.serial).Debugf("airplane mode %sd", mode)
	return nil
}

// ResetBatteryStatus drops any simulated battery state.
func (d *Device) ResetBatteryStatus(ctx context.Context) error {
	if _, err := d.Shell(ctx, "cmd", "battery", "reset"); err != nil {
		return pkgerrors.Wrap(err, "failed to reset battery status")
	}
	return nil
}

// UnplugDevice makes the device believe it runs on battery, so BatteryStats
// accumulates.
func (d *Device) UnplugDevice(ctx context.Context) error {
	if _, err := d.Shell(ctx, "cmd", "battery", "unplug"); err != nil {
		return pkgerrors.Wrap(err, "failed to unplug device")
	}
	return nil
}

// PlugInUSB simulates a USB power source.
func (d *Device) PlugInUSB(ctx context.Context) error {
	if _, err := d.Shell(ctx, "cmd", "battery", "set", "usb", "1"); err != nil {
		return pkgerrors.Wrap(err, "failed to plug in usb")
	}
	return nil
}

// PlugInAC simulates an AC power source.
func (d *Device) PlugInAC(ctx context.Context) error {
	if _, err := d.Shell(ctx, "cmd", "battery", "set", "ac", "1"); err != nil {
		return pkgerrors.Wrap(err, "failed to plug in ac")
	}
	return nil
}

// ResetBatteryStats clears the accumulated BatteryStats counters.
func (d *Device) ResetBatteryStats(ctx context.Context) error {
	if _, err := d.Shell(ctx, "dumpsys", "batterystats", "--reset"); err != nil {
		return pkgerrors.Wrap(err, "failed to reset batterystats")
	}
	return nil
}

// HasFeature reports whether the package manager lists the feature.
func (d *Device) HasFeature(ctx context.Context, feature string) (bool, error) {
	out, err := d.Shell(ctx, "pm", "list", "features")
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to list features")
	}
	want := "feature:" + feature
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == want {
			return true, nil
		}
	}
	return false, nil
}

// CheckFeature reports whether the presence of feature equals want. Callers
// skip their work when it returns false.
func (d *Device) CheckFeature(ctx context.Context, feature string, want bool) (bool, error) {
	has, err := d.HasFeature(ctx, feature)
	if err != nil {
		return false, err
	}
	if has != want {
		logrus.WithFields(logrus.Fields{
			"serial":  d.serial,
			"feature": feature,
			"has":     has,
		}).Info("device feature does not match requirement")
	}
	return has == want, nil
}

// PackageUID returns the uid the package runs as.
func (d *Device) PackageUID(ctx context.Context, pkg string) (int32, error) {
	out, err := d.Shell(ctx, "dumpsys", "package", pkg)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to dump package %s", pkg)
	}
	m := userIDRE.FindSubmatch(out)
	if m == nil {
		return 0, pkgerrors.Errorf("no uid found for package %s", pkg)
	}
	uid, err := strconv.ParseInt(string(m[1]), 10, 32)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid uid for package %s", pkg)
	}
	return int32(uid), nil
}

// StatsdDisabled reports whether statsd is switched off on the build.
func (d *Device) StatsdDisabled(ctx context.Context) (bool, error) {
	v, err := d.ShellString(ctx, "getprop", "ro.statsd.enable")
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to read ro.statsd.enable")
	}
	return v == "false", nil
}

// RunInstrumentation runs a single device-side test method and fails if it
// did not pass.
func (d *Device) RunInstrumentation(ctx context.Context, pkg, class, method, runner string) error {
	target := pkg + class
	if method != "" {
		target += "#" + method
	}
	out, err := d.Shell(ctx, "am", "instrument", "-w", "-r", "-e", "class", target, pkg+"/"+runner)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to run %s", target)
	}
	if err := instrumentationError(string(out)); err != nil {
		return pkgerrors.Wrapf(err, "%s", target)
	}
	logrus.WithFields(logrus.Fields{
		"serial": d.serial,
		"test":   target,
	}).Debug("device test passed")
	return nil
}

func instrumentationError(out string) error {
	for _, marker := range []string{"FAILURES!!!", "INSTRUMENTATION_FAILED", "INSTRUMENTATION_ABORTED"} {
		if strings.Contains(out, marker) {
			return pkgerrors.Wrapf(ErrInstrumentationFailed, "found %s in output", marker)
		}
	}
	if !strings.Contains(out, "OK (") {
		return pkgerrors.Wrap(ErrInstrumentationFailed, "no passing test reported")
	}
	return nil
}
