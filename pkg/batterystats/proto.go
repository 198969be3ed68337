package batterystats

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/statsval/internal/wire"
)

// Field numbers along the paths read from BatteryStatsServiceDumpProto.
const (
	dumpBatteryStats = 1 // BatteryStatsServiceDumpProto.batterystats

	statsUIDs   = 5 // BatteryStatsProto.uids
	statsSystem = 6 // BatteryStatsProto.system

	uidUID          = 1  // UidProto.uid
	uidPowerUseItem = 18 // UidProto.power_use_item
	itemComputedMah = 1  // UidProto.PowerUseItem.computed_power_mah

	systemMisc            = 14 // SystemProto.misc
	systemPowerUseSummary = 17 // SystemProto.power_use_summary
	miscConnChanges       = 11 // SystemProto.Misc.num_connectivity_changes
	summaryComputedMah    = 2  // SystemProto.PowerUseSummary.computed_power_mah
)

// UnmarshalDump decodes the output of `dumpsys batterystats --proto`.
func UnmarshalDump(b []byte) (*Snapshot, error) {
	s := &Snapshot{Source: SourceProto, UIDPowerMah: map[int32]float64{}}
	found := false
	err := wire.Walk(b, func(f wire.Field) error {
		if f.Num != dumpBatteryStats {
			return nil
		}
		found = true
		return unmarshalBatteryStats(f.Bytes, s)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to decode batterystats dump")
	}
	if !found {
		return nil, pkgerrors.New("batterystats dump has no batterystats message")
	}
	return s, nil
}

func unmarshalBatteryStats(b []byte, s *Snapshot) error {
	return wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case statsUIDs:
			return unmarshalUID(f.Bytes, s)
		case statsSystem:
			return unmarshalSystem(f.Bytes, s)
		}
		return nil
	})
}

func unmarshalUID(b []byte, s *Snapshot) error {
	var (
		uid    int32
		mah    float64
		hasUID bool
	)
	err := wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case uidUID:
			uid = f.Int32()
			hasUID = true
		case uidPowerUseItem:
			return wire.Walk(f.Bytes, func(f wire.Field) error {
				if f.Num == itemComputedMah {
					mah = f.Double()
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(err, "uid")
	}
	if hasUID {
		s.UIDPowerMah[uid] += mah
	}
	return nil
}

func unmarshalSystem(b []byte, s *Snapshot) error {
	return wire.Walk(b, func(f wire.Field) error {
		switch f.Num {
		case systemMisc:
			return wire.Walk(f.Bytes, func(f wire.Field) error {
				if f.Num == miscConnChanges {
					s.NumConnectivityChanges = int64(f.Int32())
				}
				return nil
			})
		case systemPowerUseSummary:
			return wire.Walk(f.Bytes, func(f wire.Field) error {
				if f.Num == summaryComputedMah {
					s.ComputedPowerMah = f.Double()
				}
				return nil
			})
		}
		return nil
	})
}
