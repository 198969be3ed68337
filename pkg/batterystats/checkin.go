package batterystats

import (
	"encoding/csv"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Checkin section names and their column indexes, counted from the start of
// the line (version, uid, category, section, values...).
const (
	sectionMisc            = "m"
	sectionPowerUseSummary = "pws"
	sectionPowerUseItem    = "pwi"

	categorySinceCharged = "l"

	colUID             = 1
	colCategory        = 2
	colSection         = 3
	colMiscConnChanges = 12
	colPwsComputedMah  = 5
	colPwiLabel        = 4
	colPwiMah          = 5
)

// parseCSV splits checkin output into records. Bug reports may contain bare
// quotes and rows of varying width.
func parseCSV(content string) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	for i := range records {
		for j := range records[i] {
			records[i][j] = strings.TrimSpace(records[i][j])
		}
	}
	return records, nil
}

// ParseCheckin reads a Snapshot from `dumpsys batterystats --checkin` output.
// Only "since charged" rows are used.
func ParseCheckin(content string) (*Snapshot, error) {
	records, err := parseCSV(content)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse checkin csv")
	}

	s := &Snapshot{Source: SourceCheckin, UIDPowerMah: map[int32]float64{}}
	var sawMisc, sawSummary bool

	for i, rec := range records {
		if len(rec) <= colSection || rec[colCategory] != categorySinceCharged {
			continue
		}
		switch rec[colSection] {
		case sectionMisc:
			if len(rec) <= colMiscConnChanges {
				return nil, pkgerrors.Errorf("line %d: misc row has %d columns", i+1, len(rec))
			}
			v, err := strconv.ParseInt(rec[colMiscConnChanges], 10, 64)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "line %d: connectivity changes", i+1)
			}
			s.NumConnectivityChanges = v
			sawMisc = true
		case sectionPowerUseSummary:
			if len(rec) <= colPwsComputedMah {
				return nil, pkgerrors.Errorf("line %d: power summary row has %d columns", i+1, len(rec))
			}
			v, err := strconv.ParseFloat(rec[colPwsComputedMah], 64)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "line %d: computed power", i+1)
			}
			s.ComputedPowerMah = v
			sawSummary = true
		case sectionPowerUseItem:
			if len(rec) <= colPwiMah || rec[colPwiLabel] != "uid" {
				continue
			}
			uid, err := strconv.ParseInt(rec[colUID], 10, 32)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "line %d: uid", i+1)
			}
			v, err := strconv.ParseFloat(rec[colPwiMah], 64)
			if err != nil {
				return nil, pkgerrors.Wrapf(err, "line %d: uid power", i+1)
			}
			s.UIDPowerMah[int32(uid)] += v
		}
	}

	if !sawMisc && !sawSummary {
		return nil, pkgerrors.New("checkin output has no since-charged misc or power summary rows")
	}
	return s, nil
}
