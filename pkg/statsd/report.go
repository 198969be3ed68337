package statsd

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/statsval/internal/wire"
)

// ConfigKey identifies an uploaded config: the uploader uid and config id.
type ConfigKey struct {
	UID int32 `json:"uid"`
	ID  int64 `json:"id"`
}

// CountBucket is CountBucketInfo.
type CountBucket struct {
	StartNanos int64 `json:"startNanos"`
	EndNanos   int64 `json:"endNanos"`
	Count      int64 `json:"count"`
}

// CountMetricData holds the buckets of one dimension of a count metric.
type CountMetricData struct {
	Buckets []CountBucket `json:"buckets"`
}

// GaugeBucket is GaugeBucketInfo.
type GaugeBucket struct {
	StartNanos int64  `json:"startNanos"`
	EndNanos   int64  `json:"endNanos"`
	Atoms      []Atom `json:"atoms"`
}

// GaugeMetricData holds the buckets of one dimension of a gauge metric.
type GaugeMetricData struct {
	Buckets []GaugeBucket `json:"buckets"`
}

// MetricReport is StatsLogReport restricted to count and gauge data.
type MetricReport struct {
	MetricID int64             `json:"metricId"`
	Count    []CountMetricData `json:"count,omitempty"`
	Gauge    []GaugeMetricData `json:"gauge,omitempty"`
}

// Report is ConfigMetricsReport.
type Report struct {
	Metrics []MetricReport `json:"metrics"`
}

// ReportList is ConfigMetricsReportList, what dump-report returns.
type ReportList struct {
	ConfigKey ConfigKey `json:"configKey"`
	Reports   []Report  `json:"reports"`
}

// UnmarshalReportList decodes a ConfigMetricsReportList.
func UnmarshalReportList(b []byte) (*ReportList, error) {
	list := &ReportList{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			return wire.Walk(f.Bytes, func(f wire.Field) error {
				switch f.Num {
				case 1:
					list.ConfigKey.UID = f.Int32()
				case 2:
					list.ConfigKey.ID = f.Int64()
				}
				return nil
			})
		case 2:
			r, err := unmarshalReport(f.Bytes)
			if err != nil {
				return pkgerrors.Wrapf(err, "report %d", len(list.Reports))
			}
			list.Reports = append(list.Reports, *r)
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode ConfigMetricsReportList")
	}
	return list, nil
}

func unmarshalReport(b []byte) (*Report, error) {
	r := &Report{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		m, err := unmarshalMetricReport(f.Bytes)
		if err != nil {
			return err
		}
		r.Metrics = append(r.Metrics, *m)
		return nil
	})
	return r, err
}

func unmarshalMetricReport(b []byte) (*MetricReport, error) {
	m := &MetricReport{}
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			m.MetricID = f.Int64()
		case 5:
			return eachData(f.Bytes, func(d []byte) error {
				c, err := unmarshalCountData(d)
				if err != nil {
					return err
				}
				m.Count = append(m.Count, *c)
				return nil
			})
		case 8:
			return eachData(f.Bytes, func(d []byte) error {
				g, err := unmarshalGaugeData(d)
				if err != nil {
					return err
				}
				m.Gauge = append(m.Gauge, *g)
				return nil
			})
		}
		return nil
	})
	return m, err
}

// eachData calls fn with every `data` entry of a *MetricDataWrapper.
func eachData(wrapper []byte, fn func([]byte) error) error {
	return wire.Walk(wrapper, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		return fn(f.Bytes)
	})
}

func unmarshalCountData(b []byte) (*CountMetricData, error) {
	d := &CountMetricData{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num != 3 {
			return nil
		}
		var bucket CountBucket
		if err := wire.Walk(f.Bytes, func(f wire.Field) error {
			switch f.Num {
			case 1:
				bucket.StartNanos = f.Int64()
			case 2:
				bucket.EndNanos = f.Int64()
			case 3:
				bucket.Count = f.Int64()
			}
			return nil
		}); err != nil {
			return err
		}
		d.Buckets = append(d.Buckets, bucket)
		return nil
	})
	return d, err
}

func unmarshalGaugeData(b []byte) (*GaugeMetricData, error) {
	d := &GaugeMetricData{}
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num != 3 {
			return nil
		}
		var bucket GaugeBucket
		if err := wire.Walk(f.Bytes, func(f wire.Field) error {
			switch f.Num {
			case 1:
				bucket.StartNanos = f.Int64()
			case 2:
				bucket.EndNanos = f.Int64()
			case 3:
				a, err := unmarshalAtom(f.Bytes)
				if err != nil {
					return err
				}
				bucket.Atoms = append(bucket.Atoms, *a)
			}
			return nil
		}); err != nil {
			return err
		}
		d.Buckets = append(d.Buckets, bucket)
		return nil
	})
	return d, err
}

// unmarshalAtom decodes an Atom. The Atom message is a oneof keyed by atom id,
// so the single field number present is the id.
func unmarshalAtom(b []byte) (*Atom, error) {
	a := &Atom{}
	err := wire.Walk(b, func(f wire.Field) error {
		a.ID = int32(f.Num)
		switch f.Num {
		case AtomDeviceCalculatedPowerUse:
			p := &DeviceCalculatedPowerUse{}
			if err := wire.Walk(f.Bytes, func(f wire.Field) error {
				if f.Num == 1 {
					p.ComputedPowerMilliAmpHours = f.Float()
				}
				return nil
			}); err != nil {
				return err
			}
			a.PowerUse = p
		case AtomDeviceCalculatedPowerBlameUID:
			p := &DeviceCalculatedPowerBlameUID{}
			if err := wire.Walk(f.Bytes, func(f wire.Field) error {
				switch f.Num {
				case 1:
					p.UID = f.Int32()
				case 2:
					p.PowerMilliAmpHours = f.Float()
				}
				return nil
			}); err != nil {
				return err
			}
			a.PowerBlameUID = p
		}
		return nil
	})
	return a, err
}
