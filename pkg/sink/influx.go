// Package sink exports check results to external stores.
package sink

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/validation"
)

// Measurement is the InfluxDB measurement results are written to.
const Measurement = "statsval_check"

// Sink receives the results of a run.
type Sink interface {
	Write(ctx context.Context, runID string, results []validation.Result) error
	Close()
}

// Influx writes one point per result.
type Influx struct {
	client influxdb2.Client
	writer api.WriteAPIBlocking
	url    string
}

// NewInflux connects to cfg and checks the server is healthy.
func NewInflux(ctx context.Context, cfg config.Influx) (*Influx, error) {
	if !cfg.Enabled() {
		return nil, pkgerrors.New("influx url is empty")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, pkgerrors.Wrapf(err, "failed to connect to influxdb at %s", cfg.URL)
	}
	if health.Status != domain.HealthCheckStatusPass {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, pkgerrors.Errorf("influxdb health check failed: %s", msg)
	}
	logrus.WithField("url", cfg.URL).Info("connected to influxdb")

	return &Influx{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		url:    cfg.URL,
	}, nil
}

// Write writes results as points tagged with check, serial and status.
func (i *Influx) Write(ctx context.Context, runID string, results []validation.Result) error {
	if len(results) == 0 {
		return nil
	}
	points := make([]*write.Point, 0, len(results))
	for _, r := range results {
		points = append(points, Point(runID, r))
	}
	if err := i.writer.WritePoint(ctx, points...); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %d points to %s", len(points), i.url)
	}
	logrus.WithFields(logrus.Fields{
		"run":    runID,
		"points": len(points),
	}).Debug("wrote results to influxdb")
	return nil
}

// Close releases the client.
func (i *Influx) Close() {
	i.client.Close()
}

// Point converts a result to an InfluxDB point stamped with its end time.
func Point(runID string, r validation.Result) *write.Point {
	tags := map[string]string{
		"check":  r.Check,
		"serial": r.Serial,
		"status": string(r.Status),
	}
	fields := map[string]interface{}{
		"duration_ms": r.Duration().Milliseconds(),
		"run":         runID,
	}
	if m := r.Measurement; m != nil {
		fields["statsd"] = m.Statsd
		fields["batterystats"] = m.BatteryStats
		fields["ratio"] = m.Ratio()
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.End)
}
