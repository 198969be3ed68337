package batterystats

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/adb"
)

// Service fetches Snapshots from one device.
type Service struct {
	dev    *adb.Device
	source Source
}

// NewService returns a Service reading source. An empty source means proto.
func NewService(dev *adb.Device, source Source) *Service {
	if source == "" {
		source = SourceProto
	}
	return &Service{dev: dev, source: source}
}

// Snapshot dumps and decodes the current BatteryStats counters.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	var (
		snap *Snapshot
		err  error
	)
	switch s.source {
	case SourceProto:
		var out []byte
		out, err = s.dev.ExecOut(ctx, "dumpsys", "batterystats", "--proto")
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to dump batterystats proto")
		}
		snap, err = UnmarshalDump(out)
	case SourceCheckin:
		var out string
		out, err = s.dev.ShellString(ctx, "dumpsys", "batterystats", "--checkin")
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to dump batterystats checkin")
		}
		snap, err = ParseCheckin(out)
	default:
		return nil, pkgerrors.Errorf("unknown batterystats source %q", s.source)
	}
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"serial":           s.dev.Serial(),
		"source":           snap.Source,
		"connChanges":      snap.NumConnectivityChanges,
		"computedPowerMah": snap.ComputedPowerMah,
		"uids":             len(snap.UIDPowerMah),
	}).Debug("batterystats snapshot")
	return snap, nil
}
