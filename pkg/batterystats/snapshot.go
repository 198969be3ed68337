// Package batterystats reads power and connectivity counters from the
// BatteryStats service of a device.
package batterystats

import (
	"sort"
)

// Source selects the dumpsys output format a Snapshot is read from.
type Source string

const (
	// SourceProto reads `dumpsys batterystats --proto`.
	SourceProto Source = "proto"
	// SourceCheckin reads `dumpsys batterystats --checkin`, for builds
	// without a proto dump.
	SourceCheckin Source = "checkin"
)

// Snapshot holds the BatteryStats counters compared against statsd.
type Snapshot struct {
	Source                 Source            `json:"source"`
	NumConnectivityChanges int64             `json:"numConnectivityChanges"`
	ComputedPowerMah       float64           `json:"computedPowerMah"`
	UIDPowerMah            map[int32]float64 `json:"uidPowerMah,omitempty"`
}

// UID returns the computed power of uid and whether BatteryStats reported it.
func (s *Snapshot) UID(uid int32) (float64, bool) {
	if s == nil || s.UIDPowerMah == nil {
		return 0, false
	}
	p, ok := s.UIDPowerMah[uid]
	return p, ok
}

// UIDs returns the reported uids in ascending order.
func (s *Snapshot) UIDs() []int32 {
	uids := make([]int32, 0, len(s.UIDPowerMah))
	for u := range s.UIDPowerMah {
		uids = append(uids, u)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Delta returns a minus b. Uids only present in a are kept unchanged; uids
// only present in b are dropped.
func Delta(a, b *Snapshot) *Snapshot {
	if a == nil {
		return nil
	}
	if b == nil {
		b = &Snapshot{}
	}
	d := &Snapshot{
		Source:                 a.Source,
		NumConnectivityChanges: a.NumConnectivityChanges - b.NumConnectivityChanges,
		ComputedPowerMah:       a.ComputedPowerMah - b.ComputedPowerMah,
	}
	if a.UIDPowerMah != nil {
		d.UIDPowerMah = make(map[int32]float64, len(a.UIDPowerMah))
		for u, p := range a.UIDPowerMah {
			d.UIDPowerMah[u] = p - b.UIDPowerMah[u]
		}
	}
	return d
}
