package types

import "time"

// ScheduleStatus describes the cron schedule of the daemon.
type ScheduleStatus struct {
	Cron    string     `json:"cron"`
	Enabled bool       `json:"enabled"`
	NextRun *time.Time `json:"nextRun,omitempty"`
	// Next lists the upcoming run times after NextRun.
	Next []time.Time `json:"next,omitempty"`
}
