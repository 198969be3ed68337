package adb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/adb/adbtest"
)

const dumpsysPackage = `Packages:
  Package [com.android.server.cts.device.statsd] (3b1c2a0):
    userId=10123
    pkg=Package{5d2e1f7 com.android.server.cts.device.statsd}
`

const pmListFeatures = `feature:reqGlEsVersion=0x30002
feature:android.hardware.wifi
feature:android.hardware.wifi.direct
feature:android.software.leanback
`

func TestDeviceSerialArgs(t *testing.T) {
	r := adbtest.NewRunner()
	d := adb.NewDevice("emulator-5554", "", r)
	if _, err := d.Shell(context.Background(), "cmd", "battery", "reset"); err != nil {
		t.Fatalf("Shell() error = %v", err)
	}

	want := []string{"-s emulator-5554 shell cmd battery reset"}
	if diff := cmp.Diff(want, r.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestDeviceNoSerial(t *testing.T) {
	r := adbtest.NewRunner()
	d := adb.NewDevice("", "", r)
	if err := d.UnplugDevice(context.Background()); err != nil {
		t.Fatalf("UnplugDevice() error = %v", err)
	}
	if got := r.Commands()[0]; got != "shell cmd battery unplug" {
		t.Errorf("command = %q", got)
	}
}

func TestDeviceNotFound(t *testing.T) {
	r := adbtest.NewRunner().OnError("get-state", errors.New("adb: device 'abc' not found"))
	d := adb.NewDevice("abc", "", r)
	_, err := d.State(context.Background())
	if !errors.Is(err, adb.ErrDeviceNotFound) {
		t.Fatalf("State() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDeviceErrorClassification(t *testing.T) {
	const pkgCmd = "-s abc shell dumpsys package com.android.server.cts.device.statsd"
	tests := []struct {
		name    string
		err     error
		missing bool
	}{
		{
			name:    "missing serial",
			err:     &adb.CommandError{Command: "adb " + pkgCmd, Err: errors.New("exit status 1"), Stderr: "adb: device 'abc' not found"},
			missing: true,
		},
		{
			name:    "no devices",
			err:     &adb.CommandError{Command: "adb " + pkgCmd, Err: errors.New("exit status 1"), Stderr: "adb: no devices/emulators found"},
			missing: true,
		},
		{
			name:    "offline",
			err:     &adb.CommandError{Command: "adb " + pkgCmd, Err: errors.New("exit status 1"), Stderr: "adb: device offline"},
			missing: true,
		},
		{
			name: "shell command not found",
			err:  &adb.CommandError{Command: "adb " + pkgCmd, Err: errors.New("exit status 127"), Stderr: "/system/bin/sh: dumpsys: inaccessible or not found"},
		},
		{
			name: "plain error naming a device package",
			err:  errors.New("dumpsys package com.android.server.cts.device.statsd: /system/bin/sh: dumpsys: inaccessible or not found"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := adbtest.NewRunner().OnError("dumpsys package", tt.err)
			d := adb.NewDevice("abc", "", r)
			_, err := d.Shell(context.Background(), "dumpsys", "package", "com.android.server.cts.device.statsd")
			if err == nil {
				t.Fatal("Shell() error = nil")
			}
			if got := errors.Is(err, adb.ErrDeviceNotFound); got != tt.missing {
				t.Errorf("errors.Is(%v, ErrDeviceNotFound) = %v, want %v", err, got, tt.missing)
			}
		})
	}
}

func TestHasFeature(t *testing.T) {
	tests := []struct {
		name    string
		feature string
		want    bool
	}{
		{name: "present", feature: adb.FeatureWifi, want: true},
		{name: "prefix of another feature", feature: "android.hardware.wifi.dir", want: false},
		{name: "leanback is not leanback only", feature: adb.FeatureLeanbackOnly, want: false},
		{name: "absent", feature: adb.FeatureWatch, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := adbtest.NewRunner().On("pm list features", pmListFeatures)
			d := adb.NewDevice("s", "", r)
			got, err := d.HasFeature(context.Background(), tt.feature)
			if err != nil {
				t.Fatalf("HasFeature() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("HasFeature(%s) = %v, want %v", tt.feature, got, tt.want)
			}
		})
	}
}

func TestCheckFeature(t *testing.T) {
	r := adbtest.NewRunner().On("pm list features", pmListFeatures)
	d := adb.NewDevice("s", "", r)

	ok, err := d.CheckFeature(context.Background(), adb.FeatureWatch, false)
	if err != nil || !ok {
		t.Errorf("CheckFeature(watch, false) = %v, %v, want true", ok, err)
	}
	ok, err = d.CheckFeature(context.Background(), adb.FeatureWifi, false)
	if err != nil || ok {
		t.Errorf("CheckFeature(wifi, false) = %v, %v, want false", ok, err)
	}
}

func TestPackageUID(t *testing.T) {
	r := adbtest.NewRunner().On("dumpsys package", dumpsysPackage)
	d := adb.NewDevice("s", "", r)
	uid, err := d.PackageUID(context.Background(), "com.android.server.cts.device.statsd")
	if err != nil {
		t.Fatalf("PackageUID() error = %v", err)
	}
	if uid != 10123 {
		t.Errorf("PackageUID() = %d, want 10123", uid)
	}

	r = adbtest.NewRunner().On("dumpsys package", "Unable to find package: x\n")
	d = adb.NewDevice("s", "", r)
	if _, err := d.PackageUID(context.Background(), "x"); err == nil {
		t.Errorf("PackageUID() on missing package should fail")
	}
}

func TestStatsdDisabled(t *testing.T) {
	tests := []struct {
		prop string
		want bool
	}{
		{prop: "false\n", want: true},
		{prop: "true\n", want: false},
		{prop: "\n", want: false},
	}
	for _, tt := range tests {
		r := adbtest.NewRunner().On("getprop ro.statsd.enable", tt.prop)
		d := adb.NewDevice("s", "", r)
		got, err := d.StatsdDisabled(context.Background())
		if err != nil {
			t.Fatalf("StatsdDisabled() error = %v", err)
		}
		if got != tt.want {
			t.Errorf("StatsdDisabled() with %q = %v, want %v", tt.prop, got, tt.want)
		}
	}
}

func TestRunInstrumentation(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{
			name:   "pass",
			output: "INSTRUMENTATION_STATUS_CODE: 0\n\nTime: 1.2\n\nOK (1 test)\n",
		},
		{
			name:    "failure",
			output:  "There was 1 failure:\nFAILURES!!!\nTests run: 1,  Failures: 1\n",
			wantErr: true,
		},
		{
			name:    "runner missing",
			output:  "INSTRUMENTATION_FAILED: com.example/androidx.test.runner.AndroidJUnitRunner\n",
			wantErr: true,
		},
		{
			name:    "empty",
			output:  "",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := adbtest.NewRunner().On("am instrument", tt.output)
			d := adb.NewDevice("s", "", r)
			err := d.RunInstrumentation(context.Background(), "com.example", ".AtomTests", "testSimpleCpu", "androidx.test.runner.AndroidJUnitRunner")
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunInstrumentation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, adb.ErrInstrumentationFailed) {
				t.Errorf("error %v does not wrap ErrInstrumentationFailed", err)
			}
			want := "-s s shell am instrument -w -r -e class com.example.AtomTests#testSimpleCpu com.example/androidx.test.runner.AndroidJUnitRunner"
			if got := r.Commands()[0]; got != want {
				t.Errorf("command = %q, want %q", got, want)
			}
		})
	}
}

func TestSetAirplaneMode(t *testing.T) {
	r := adbtest.NewRunner()
	d := adb.NewDevice("s", "", r)
	ctx := context.Background()
	if err := d.SetAirplaneMode(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := d.SetAirplaneMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"-s s shell cmd connectivity airplane-mode enable",
		"-s s shell cmd connectivity airplane-mode disable",
	}
	if diff := cmp.Diff(want, r.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall(t *testing.T) {
	r := adbtest.NewRunner().On("install", "Performing Streamed Install\nSuccess\n")
	d := adb.NewDevice("s", "", r)
	if err := d.Install(context.Background(), "/tmp/a.apk"); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	r = adbtest.NewRunner().On("install", "Failure [INSTALL_FAILED_OLDER_SDK]\n")
	d = adb.NewDevice("s", "", r)
	if err := d.Install(context.Background(), "/tmp/a.apk"); err == nil {
		t.Errorf("Install() should fail on Failure output")
	}
}
