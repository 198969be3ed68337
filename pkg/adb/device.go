// Package adb drives an Android device through the adb command line tool.
package adb

import (
	"context"
	"errors"
	"regexp"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPath is the adb binary looked up in PATH.
const DefaultPath = "adb"

// Device is one adb-attached device.
type Device struct {
	serial  string
	adbPath string
	runner  Runner
}

// NewDevice returns a Device for serial. An empty serial lets adb pick the
// only attached device.
func NewDevice(serial, adbPath string, runner Runner) *Device {
	if adbPath == "" {
		adbPath = DefaultPath
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Device{
		serial:  serial,
		adbPath: adbPath,
		runner:  runner,
	}
}

// Serial returns the device serial. It may be empty.
func (d *Device) Serial() string {
	return d.serial
}

func (d *Device) args(args ...string) []string {
	if d.serial == "" {
		return args
	}
	return append([]string{"-s", d.serial}, args...)
}

// Command runs an adb subcommand (e.g. "push") and returns its stdout.
func (d *Device) Command(ctx context.Context, args ...string) ([]byte, error) {
	return d.CommandWithInput(ctx, nil, args...)
}

// CommandWithInput is like Command but feeds stdin to adb.
func (d *Device) CommandWithInput(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	full := d.args(args...)
	logrus.WithFields(logrus.Fields{
		"serial":  d.serial,
		"command": strings.Join(full, " "),
	}).Debug("running adb")

	out, err := d.runner.Output(ctx, stdin, d.adbPath, full...)
	if err != nil {
		if isDeviceMissing(err) {
			return nil, pkgerrors.Wrapf(ErrDeviceNotFound, "%s: %v", d.serial, err)
		}
		return nil, err
	}
	return out, nil
}

// Shell runs a command in the device shell. The arguments are joined with
// spaces, so pipes and redirections are interpreted by the device shell.
func (d *Device) Shell(ctx context.Context, cmd ...string) ([]byte, error) {
	return d.Command(ctx, append([]string{"shell"}, cmd...)...)
}

// ExecOut runs a device command with a raw binary-safe stdout, for
// protobuf dumps.
func (d *Device) ExecOut(ctx context.Context, cmd ...string) ([]byte, error) {
	return d.Command(ctx, append([]string{"exec-out"}, cmd...)...)
}

// ShellString runs a shell command and returns its trimmed output.
func (d *Device) ShellString(ctx context.Context, cmd ...string) (string, error) {
	out, err := d.Shell(ctx, cmd...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// State returns the adb connection state, "device" when usable.
func (d *Device) State(ctx context.Context) (string, error) {
	out, err := d.Command(ctx, "get-state")
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to get device state")
	}
	return strings.TrimSpace(string(out)), nil
}

// Push copies a local file to the device.
func (d *Device) Push(ctx context.Context, local, remote string) error {
	if _, err := d.Command(ctx, "push", local, remote); err != nil {
		return pkgerrors.Wrapf(err, "failed to push %s to %s", local, remote)
	}
	return nil
}

// Install installs or replaces an APK, granting its runtime permissions.
func (d *Device) Install(ctx context.Context, apk string) error {
	out, err := d.Command(ctx, "install", "-r", "-g", apk)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to install %s", apk)
	}
	if !strings.Contains(string(out), "Success") {
		return pkgerrors.Errorf("failed to install %s: %s", apk, strings.TrimSpace(string(out)))
	}
	return nil
}

// Uninstall removes a package. A missing package is not an error.
func (d *Device) Uninstall(ctx context.Context, pkg string) error {
	if _, err := d.Command(ctx, "uninstall", pkg); err != nil {
		logrus.WithField("package", pkg).Debugf("uninstall: %v", err)
	}
	return nil
}

// deviceMissingRe matches the lines adb itself prints when it cannot reach
// a device, as opposed to errors from the command run on the device.
var deviceMissingRe = regexp.MustCompile(`(?m)^(?:adb: )?(?:error: )?(?:device '[^']*' not found|device not found|no devices/emulators found|device offline|device '[^']*' offline)$`)

func isDeviceMissing(err error) bool {
	msg := err.Error()
	var ce *CommandError
	if errors.As(err, &ce) {
		msg = ce.Stderr
	}
	return deviceMissingRe.MatchString(msg)
}
