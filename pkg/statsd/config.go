package statsd

import (
	"github.com/charlie0129/statsval/internal/wire"
)

// TimeUnit is the bucket size of a metric.
type TimeUnit int

const (
	TimeUnitUnspecified TimeUnit = 0
	OneMinute           TimeUnit = 1
	FiveMinutes         TimeUnit = 2
	OneHour             TimeUnit = 5
	OneDay              TimeUnit = 9

	// BucketCTS is a bucket that never closes during a test run.
	BucketCTS TimeUnit = 1000
)

// SamplingType is GaugeMetric.SamplingType.
type SamplingType int

const (
	RandomOneSample       SamplingType = 1
	AllConditionChanges   SamplingType = 2
	ConditionChangeToTrue SamplingType = 3
	FirstNSamples         SamplingType = 4
)

// StatsdConfig field numbers.
const (
	configID               = 1
	configCountMetric      = 3
	configGaugeMetric      = 5
	configAtomMatcher      = 7
	configPredicate        = 8
	configAllowedLogSource = 12
	configTTLInSeconds     = 15
)

// FieldValueMatcher matches one field of an atom against an integer.
type FieldValueMatcher struct {
	Field int32
	EqInt int64
}

// AtomMatcher selects atoms of one id, optionally filtered by field values.
type AtomMatcher struct {
	ID     int64
	AtomID int32
	Fields []FieldValueMatcher
}

// Predicate is a simple predicate that turns true on Start and false on Stop.
type Predicate struct {
	ID           int64
	Start        int64
	Stop         int64
	CountNesting bool
}

// CountMetric counts matched atoms per bucket.
type CountMetric struct {
	ID        int64
	What      int64
	Condition int64
	Bucket    TimeUnit
}

// GaugeMetric samples atoms when its condition changes.
type GaugeMetric struct {
	ID         int64
	What       int64
	Condition  int64
	IncludeAll bool
	Sampling   SamplingType
	Bucket     TimeUnit
}

// Config is the subset of StatsdConfig statsval uploads.
type Config struct {
	ID                int64
	AllowedLogSources []string
	AtomMatchers      []AtomMatcher
	Predicates        []Predicate
	CountMetrics      []CountMetric
	GaugeMetrics      []GaugeMetric
	TTLInSeconds      int64
}

// Marshal encodes c as a StatsdConfig message.
func (c *Config) Marshal() []byte {
	m := &wire.Builder{}
	m.Int64(configID, c.ID)

	for _, cm := range c.CountMetrics {
		sub := (&wire.Builder{}).Int64(1, cm.ID).Int64(2, cm.What)
		if cm.Condition != 0 {
			sub.Int64(3, cm.Condition)
		}
		sub.Int32(5, int32(cm.Bucket))
		m.Message(configCountMetric, sub)
	}

	for _, gm := range c.GaugeMetrics {
		sub := (&wire.Builder{}).Int64(1, gm.ID).Int64(2, gm.What)
		if gm.IncludeAll {
			sub.Message(3, (&wire.Builder{}).Bool(1, true))
		}
		if gm.Condition != 0 {
			sub.Int64(4, gm.Condition)
		}
		sub.Int32(6, int32(gm.Bucket))
		if gm.Sampling != 0 {
			sub.Int32(9, int32(gm.Sampling))
		}
		m.Message(configGaugeMetric, sub)
	}

	for _, am := range c.AtomMatchers {
		simple := (&wire.Builder{}).Int32(1, am.AtomID)
		for _, fv := range am.Fields {
			simple.Message(2, (&wire.Builder{}).Int32(1, fv.Field).Int64(5, fv.EqInt))
		}
		m.Message(configAtomMatcher, (&wire.Builder{}).Int64(1, am.ID).Message(2, simple))
	}

	for _, p := range c.Predicates {
		simple := (&wire.Builder{}).Int64(1, p.Start).Int64(2, p.Stop).Bool(3, p.CountNesting)
		m.Message(configPredicate, (&wire.Builder{}).Int64(1, p.ID).Message(2, simple))
	}

	for _, src := range c.AllowedLogSources {
		m.String(configAllowedLogSource, src)
	}

	if c.TTLInSeconds > 0 {
		m.Int64(configTTLInSeconds, c.TTLInSeconds)
	}

	return m.Bytes()
}
