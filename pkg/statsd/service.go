// Package statsd uploads metric configs to the statsd daemon on a device and
// reads back the reports it produces.
package statsd

import (
	"context"
	"os"
	"strconv"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/adb"
)

// RemoteConfigPath is where configs are staged on the device before upload.
const RemoteConfigPath = "/data/local/tmp/statsval.config"

// Service talks to statsd through the `cmd stats` shell interface.
type Service struct {
	dev      *adb.Device
	configID int64
}

// NewService returns a Service managing the config with configID.
func NewService(dev *adb.Device, configID int64) *Service {
	return &Service{
		dev:      dev,
		configID: configID,
	}
}

// ConfigID returns the id of the managed config.
func (s *Service) ConfigID() int64 {
	return s.configID
}

// UploadConfig replaces the managed config with c. c.ID is overwritten with
// the service config id.
func (s *Service) UploadConfig(ctx context.Context, c *Config) error {
	c.ID = s.configID

	f, err := os.CreateTemp("", "statsval-*.config")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create temp config file")
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil {
			logrus.Warnf("failed to remove %s: %v", f.Name(), err)
		}
	}()

	if _, err := f.Write(c.Marshal()); err != nil {
		_ = f.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", f.Name())
	}
	if err := f.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", f.Name())
	}

	if err := s.dev.Push(ctx, f.Name(), RemoteConfigPath); err != nil {
		return err
	}

	id := strconv.FormatInt(s.configID, 10)
	if _, err := s.dev.Shell(ctx, "cat", RemoteConfigPath, "|", "cmd", "stats", "config", "update", id); err != nil {
		return pkgerrors.Wrapf(err, "failed to update config %s", id)
	}
	if _, err := s.dev.Shell(ctx, "rm", "-f", RemoteConfigPath); err != nil {
		logrus.WithField("serial", s.dev.Serial()).Warnf("failed to remove staged config: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"serial":   s.dev.Serial(),
		"configId": s.configID,
		"matchers": len(c.AtomMatchers),
		"count":    len(c.CountMetrics),
		"gauge":    len(c.GaugeMetrics),
	}).Debug("uploaded statsd config")
	return nil
}

// RemoveConfig removes the managed config from statsd.
func (s *Service) RemoveConfig(ctx context.Context) error {
	id := strconv.FormatInt(s.configID, 10)
	if _, err := s.dev.Shell(ctx, "cmd", "stats", "config", "remove", id); err != nil {
		return pkgerrors.Wrapf(err, "failed to remove config %s", id)
	}
	return nil
}

// ReportList dumps and clears the reports of the managed config, including
// the bucket still open.
func (s *Service) ReportList(ctx context.Context) (*ReportList, error) {
	id := strconv.FormatInt(s.configID, 10)
	out, err := s.dev.ExecOut(ctx, "cmd", "stats", "dump-report", id, "--include_current_bucket", "--proto")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to dump report for config %s", id)
	}
	return UnmarshalReportList(out)
}

func (s *Service) singleReport(ctx context.Context) (*Report, error) {
	list, err := s.ReportList(ctx)
	if err != nil {
		return nil, err
	}
	if len(list.Reports) != 1 {
		return nil, pkgerrors.Errorf("expected 1 report, got %d", len(list.Reports))
	}
	return &list.Reports[0], nil
}

// CountMetricData returns the count data of every metric in the report.
func (s *Service) CountMetricData(ctx context.Context) ([]CountMetricData, error) {
	r, err := s.singleReport(ctx)
	if err != nil {
		return nil, err
	}
	var data []CountMetricData
	for _, m := range r.Metrics {
		data = append(data, m.Count...)
	}
	return data, nil
}

// GaugeAtoms returns every atom sampled by the first metric of the report,
// in bucket order.
func (s *Service) GaugeAtoms(ctx context.Context) ([]Atom, error) {
	r, err := s.singleReport(ctx)
	if err != nil {
		return nil, err
	}
	if len(r.Metrics) == 0 {
		return nil, pkgerrors.New("report has no metrics")
	}
	var atoms []Atom
	for _, d := range r.Metrics[0].Gauge {
		for _, b := range d.Buckets {
			atoms = append(atoms, b.Atoms...)
		}
	}
	return atoms, nil
}

// LogAppBreadcrumb logs an AppBreadcrumbReported atom as the shell uid.
func (s *Service) LogAppBreadcrumb(ctx context.Context, label int, state BreadcrumbState) error {
	l, st := strconv.Itoa(label), strconv.Itoa(int(state))
	if _, err := s.dev.Shell(ctx, "cmd", "stats", "log-app-breadcrumb", l, st); err != nil {
		return pkgerrors.Wrapf(err, "failed to log app breadcrumb %s/%s", l, st)
	}
	return nil
}

// SetAppBreadcrumbPredicate makes the gauge predicate true, which samples
// pulled atoms.
func (s *Service) SetAppBreadcrumbPredicate(ctx context.Context) error {
	return s.LogAppBreadcrumb(ctx, BreadcrumbLabelTrue, BreadcrumbStarted)
}

// ClearAppBreadcrumbPredicate makes the gauge predicate false.
func (s *Service) ClearAppBreadcrumbPredicate(ctx context.Context) error {
	return s.LogAppBreadcrumb(ctx, BreadcrumbLabelFalse, BreadcrumbStarted)
}
