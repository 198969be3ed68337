package config

import "time"

// Influx holds the connection of the optional InfluxDB results sink.
type Influx struct {
	URL    string `json:"url,omitempty"`
	Org    string `json:"org,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Enabled reports whether results should be written to InfluxDB.
func (i Influx) Enabled() bool {
	return i.URL != ""
}

type Config interface {
	// Serials are the devices to validate. Empty means the single device
	// adb picks by default.
	Serials() []string
	ADBPath() string
	DevicePackage() string
	DeviceTestClass() string
	DeviceTestMethod() string
	InstrumentationRunner() string
	APKPath() string
	BatteryStatsSource() string
	BatteryStatsBaseline() bool
	ShortWait() time.Duration
	LongWait() time.Duration
	ConnectivityRestore() time.Duration
	AllowedFractionalDifference() float64
	// Schedule is a cron expression. Empty disables scheduled runs.
	Schedule() string
	HistorySize() int
	AllowNonRootAccess() bool
	Influx() Influx

	SetSerials([]string)
	SetSchedule(string)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
