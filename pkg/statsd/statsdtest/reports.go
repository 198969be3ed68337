// Package statsdtest builds encoded statsd reports for tests.
package statsdtest

import (
	"github.com/charlie0129/statsval/internal/wire"
	"github.com/charlie0129/statsval/pkg/statsd"
)

// CountReport encodes a report list with one report holding one count
// metric. Each element of data is one CountMetricData; its values are the
// bucket counts.
func CountReport(configID int64, data ...[]int64) []byte {
	wrapper := &wire.Builder{}
	for _, counts := range data {
		d := &wire.Builder{}
		for i, c := range counts {
			start := int64(i) * 1000
			d.Message(3, (&wire.Builder{}).Int64(1, start).Int64(2, start+1000).Int64(3, c))
		}
		wrapper.Message(1, d)
	}
	metric := (&wire.Builder{}).Int64(1, statsd.MetricID).Message(5, wrapper)
	return reportList(configID, metric)
}

// PowerUseAtom encodes a DEVICE_CALCULATED_POWER_USE atom.
func PowerUseAtom(mah float32) *wire.Builder {
	return (&wire.Builder{}).Message(statsd.AtomDeviceCalculatedPowerUse, (&wire.Builder{}).Float(1, mah))
}

// PowerBlameUIDAtom encodes a DEVICE_CALCULATED_POWER_BLAME_UID atom.
func PowerBlameUIDAtom(uid int32, mah float32) *wire.Builder {
	return (&wire.Builder{}).Message(statsd.AtomDeviceCalculatedPowerBlameUID,
		(&wire.Builder{}).Int32(1, uid).Float(2, mah))
}

// GaugeReport encodes a report list with one gauge metric holding a single
// data element with one bucket per argument.
func GaugeReport(configID int64, buckets ...[]*wire.Builder) []byte {
	d := &wire.Builder{}
	for i, atoms := range buckets {
		start := int64(i) * 1000
		b := (&wire.Builder{}).Int64(1, start).Int64(2, start+1000)
		for _, a := range atoms {
			b.Message(3, a)
		}
		d.Message(3, b)
	}
	wrapper := (&wire.Builder{}).Message(1, d)
	metric := (&wire.Builder{}).Int64(1, statsd.MetricID).Message(8, wrapper)
	return reportList(configID, metric)
}

// EmptyReport encodes a report list with no reports.
func EmptyReport(configID int64) []byte {
	key := (&wire.Builder{}).Int32(1, 2000).Int64(2, configID)
	return (&wire.Builder{}).Message(1, key).Bytes()
}

func reportList(configID int64, metric *wire.Builder) []byte {
	key := (&wire.Builder{}).Int32(1, 2000).Int64(2, configID)
	report := (&wire.Builder{}).Message(1, metric).Int64(3, 1).Int64(4, 2)
	return (&wire.Builder{}).Message(1, key).Message(2, report).Bytes()
}
