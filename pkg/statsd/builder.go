package statsd

import "fmt"

// Names of the breadcrumb matchers and predicate used to gate gauge metrics.
const (
	breadcrumbPredicateName = "APP_BREADCRUMB"
	breadcrumbTrueName      = "APP_BREADCRUMB_1"
	breadcrumbFalseName     = "APP_BREADCRUMB_2"
)

// Breadcrumb labels that flip the gauge predicate.
const (
	BreadcrumbLabelTrue  = 1
	BreadcrumbLabelFalse = 2
)

// MetricID is the id given to the single metric of each validation config.
const MetricID = 1

// NewConfig returns an empty config accepting atoms logged by the system,
// bluetooth and the device-side test package.
func NewConfig(id int64, devicePackage string) *Config {
	c := &Config{
		ID:                id,
		AllowedLogSources: []string{"AID_SYSTEM", "AID_BLUETOOTH"},
	}
	if devicePackage != "" {
		c.AllowedLogSources = append(c.AllowedLogSources, devicePackage)
	}
	return c
}

// AddCountAtom adds a count metric over every atom with atomID.
func AddCountAtom(c *Config, atomID int32) {
	what := NameID(fmt.Sprintf("Count%d", atomID))
	c.AtomMatchers = append(c.AtomMatchers, AtomMatcher{ID: what, AtomID: atomID})
	c.CountMetrics = append(c.CountMetrics, CountMetric{
		ID:     MetricID,
		What:   what,
		Bucket: BucketCTS,
	})
}

// AddGaugeAtom adds a gauge metric over atomID, sampled whenever the
// APP_BREADCRUMB predicate changes. Pulled atoms are only collected when
// the predicate flips, so callers log breadcrumb label 1 to take a sample.
func AddGaugeAtom(c *Config, atomID int32) {
	what := NameID(fmt.Sprintf("Atom%d", atomID))
	trueID := NameID(breadcrumbTrueName)
	falseID := NameID(breadcrumbFalseName)
	predicateID := NameID(breadcrumbPredicateName)

	c.AtomMatchers = append(c.AtomMatchers,
		AtomMatcher{ID: what, AtomID: atomID},
		AtomMatcher{
			ID:     trueID,
			AtomID: AtomAppBreadcrumbReported,
			Fields: []FieldValueMatcher{{Field: appBreadcrumbLabelField, EqInt: BreadcrumbLabelTrue}},
		},
		AtomMatcher{
			ID:     falseID,
			AtomID: AtomAppBreadcrumbReported,
			Fields: []FieldValueMatcher{{Field: appBreadcrumbLabelField, EqInt: BreadcrumbLabelFalse}},
		},
	)
	c.Predicates = append(c.Predicates, Predicate{
		ID:           predicateID,
		Start:        trueID,
		Stop:         falseID,
		CountNesting: false,
	})
	c.GaugeMetrics = append(c.GaugeMetrics, GaugeMetric{
		ID:         MetricID,
		What:       what,
		Condition:  predicateID,
		IncludeAll: true,
		Sampling:   AllConditionChanges,
		Bucket:     BucketCTS,
	})
}
