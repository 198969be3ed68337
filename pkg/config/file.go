package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ADBPath:                     ptr.To("adb"),
		DevicePackage:               ptr.To("com.android.server.cts.device.statsd"),
		DeviceTestClass:             ptr.To(".AtomTests"),
		DeviceTestMethod:            ptr.To("testSimpleCpu"),
		InstrumentationRunner:       ptr.To("androidx.test.runner.AndroidJUnitRunner"),
		APKPath:                     ptr.To(""),
		BatteryStatsSource:          ptr.To("proto"),
		BatteryStatsBaseline:        ptr.To(false),
		ShortWaitMillis:             ptr.To(500),
		LongWaitMillis:              ptr.To(2000),
		ConnectivityRestoreSeconds:  ptr.To(10),
		AllowedFractionalDifference: ptr.To(0.8),
		Schedule:                    ptr.To(""),
		HistorySize:                 ptr.To(50),
		AllowNonRootAccess:          ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	env      *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		env:      envOverrides(),
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Serials                     []string `json:"serials,omitempty"`
	ADBPath                     *string  `json:"adbPath,omitempty"`
	DevicePackage               *string  `json:"devicePackage,omitempty"`
	DeviceTestClass             *string  `json:"deviceTestClass,omitempty"`
	DeviceTestMethod            *string  `json:"deviceTestMethod,omitempty"`
	InstrumentationRunner       *string  `json:"instrumentationRunner,omitempty"`
	APKPath                     *string  `json:"apkPath,omitempty"`
	BatteryStatsSource          *string  `json:"batteryStatsSource,omitempty"`
	BatteryStatsBaseline        *bool    `json:"batteryStatsBaseline,omitempty"`
	ShortWaitMillis             *int     `json:"shortWaitMillis,omitempty"`
	LongWaitMillis              *int     `json:"longWaitMillis,omitempty"`
	ConnectivityRestoreSeconds  *int     `json:"connectivityRestoreSeconds,omitempty"`
	AllowedFractionalDifference *float64 `json:"allowedFractionalDifference,omitempty"`
	Schedule                    *string  `json:"schedule,omitempty"`
	HistorySize                 *int     `json:"historySize,omitempty"`
	AllowNonRootAccess          *bool    `json:"allowNonRootAccess,omitempty"`
	Influx                      *Influx  `json:"influx,omitempty"`
}

// NewRawFileConfigFromConfig resolves every value of c. The Influx token is
// left out.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	influx := c.Influx()
	influx.Token = ""

	rawConfig := &RawFileConfig{
		Serials:                     c.Serials(),
		ADBPath:                     ptr.To(c.ADBPath()),
		DevicePackage:               ptr.To(c.DevicePackage()),
		DeviceTestClass:             ptr.To(c.DeviceTestClass()),
		DeviceTestMethod:            ptr.To(c.DeviceTestMethod()),
		InstrumentationRunner:       ptr.To(c.InstrumentationRunner()),
		APKPath:                     ptr.To(c.APKPath()),
		BatteryStatsSource:          ptr.To(c.BatteryStatsSource()),
		BatteryStatsBaseline:        ptr.To(c.BatteryStatsBaseline()),
		ShortWaitMillis:             ptr.To(int(c.ShortWait().Milliseconds())),
		LongWaitMillis:              ptr.To(int(c.LongWait().Milliseconds())),
		ConnectivityRestoreSeconds:  ptr.To(int(c.ConnectivityRestore().Seconds())),
		AllowedFractionalDifference: ptr.To(c.AllowedFractionalDifference()),
		Schedule:                    ptr.To(c.Schedule()),
		HistorySize:                 ptr.To(c.HistorySize()),
		AllowNonRootAccess:          ptr.To(c.AllowNonRootAccess()),
		Influx:                      &influx,
	}

	return rawConfig, nil
}

// value returns the environment override, the file value or the default,
// in that order.
func value[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env != nil {
		if v := field(f.env); v != nil {
			return *v
		}
	}
	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) Serials() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env != nil && len(f.env.Serials) > 0 {
		return append([]string(nil), f.env.Serials...)
	}
	return append([]string(nil), f.c.Serials...)
}

func (f *File) ADBPath() string {
	return value(f, func(c *RawFileConfig) *string { return c.ADBPath })
}

func (f *File) DevicePackage() string {
	return value(f, func(c *RawFileConfig) *string { return c.DevicePackage })
}

func (f *File) DeviceTestClass() string {
	return value(f, func(c *RawFileConfig) *string { return c.DeviceTestClass })
}

func (f *File) DeviceTestMethod() string {
	return value(f, func(c *RawFileConfig) *string { return c.DeviceTestMethod })
}

func (f *File) InstrumentationRunner() string {
	return value(f, func(c *RawFileConfig) *string { return c.InstrumentationRunner })
}

func (f *File) APKPath() string {
	return value(f, func(c *RawFileConfig) *string { return c.APKPath })
}

func (f *File) BatteryStatsSource() string {
	return value(f, func(c *RawFileConfig) *string { return c.BatteryStatsSource })
}

func (f *File) BatteryStatsBaseline() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.BatteryStatsBaseline })
}

func (f *File) ShortWait() time.Duration {
	ms := value(f, func(c *RawFileConfig) *int { return c.ShortWaitMillis })
	return time.Duration(ms) * time.Millisecond
}

func (f *File) LongWait() time.Duration {
	ms := value(f, func(c *RawFileConfig) *int { return c.LongWaitMillis })
	return time.Duration(ms) * time.Millisecond
}

func (f *File) ConnectivityRestore() time.Duration {
	s := value(f, func(c *RawFileConfig) *int { return c.ConnectivityRestoreSeconds })
	return time.Duration(s) * time.Second
}

func (f *File) AllowedFractionalDifference() float64 {
	return value(f, func(c *RawFileConfig) *float64 { return c.AllowedFractionalDifference })
}

func (f *File) Schedule() string {
	return value(f, func(c *RawFileConfig) *string { return c.Schedule })
}

func (f *File) HistorySize() int {
	return value(f, func(c *RawFileConfig) *int { return c.HistorySize })
}

func (f *File) AllowNonRootAccess() bool {
	return value(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) Influx() Influx {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var i Influx
	if f.c.Influx != nil {
		i = *f.c.Influx
	}
	if f.env != nil && f.env.Influx != nil && f.env.Influx.Token != "" {
		i.Token = f.env.Influx.Token
	}
	return i
}

func (f *File) SetSerials(serials []string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Serials = append([]string(nil), serials...)
}

func (f *File) SetSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Schedule = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.env = envOverrides()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (c *RawFileConfig) validate() error {
	if c.BatteryStatsSource != nil {
		switch *c.BatteryStatsSource {
		case "proto", "checkin":
		default:
			return pkgerrors.Errorf("batteryStatsSource must be proto or checkin, got %q", *c.BatteryStatsSource)
		}
	}
	if c.AllowedFractionalDifference != nil {
		if d := *c.AllowedFractionalDifference; d < 0 || d > 1 {
			return pkgerrors.Errorf("allowedFractionalDifference must be between 0 and 1, got %v", d)
		}
	}
	for name, v := range map[string]*int{
		"shortWaitMillis":            c.ShortWaitMillis,
		"longWaitMillis":             c.LongWaitMillis,
		"connectivityRestoreSeconds": c.ConnectivityRestoreSeconds,
		"historySize":                c.HistorySize,
	} {
		if v != nil && *v < 0 {
			return pkgerrors.Errorf("%s must not be negative, got %d", name, *v)
		}
	}
	return nil
}

// Save writes the file values. Environment overrides are never persisted.
func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

// Path returns the file the config is read from.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"serials":                     f.Serials(),
		"adbPath":                     f.ADBPath(),
		"devicePackage":               f.DevicePackage(),
		"batteryStatsSource":          f.BatteryStatsSource(),
		"batteryStatsBaseline":        f.BatteryStatsBaseline(),
		"shortWait":                   f.ShortWait(),
		"longWait":                    f.LongWait(),
		"connectivityRestore":         f.ConnectivityRestore(),
		"allowedFractionalDifference": f.AllowedFractionalDifference(),
		"schedule":                    f.Schedule(),
		"historySize":                 f.HistorySize(),
		"allowNonRootAccess":          f.AllowNonRootAccess(),
		"influx":                      f.Influx().URL,
	}
}
