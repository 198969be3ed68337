// Package batterystatstest builds BatteryStats dumps for tests.
package batterystatstest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charlie0129/statsval/internal/wire"
)

// Dump describes the counters encoded by Proto and Checkin.
type Dump struct {
	ConnectivityChanges int32
	ComputedPowerMah    float64
	UIDPowerMah         map[int32]float64
}

func (d Dump) sortedUIDs() []int32 {
	uids := make([]int32, 0, len(d.UIDPowerMah))
	for u := range d.UIDPowerMah {
		uids = append(uids, u)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Proto encodes d as BatteryStatsServiceDumpProto.
func (d Dump) Proto() []byte {
	stats := &wire.Builder{}
	for _, u := range d.sortedUIDs() {
		item := (&wire.Builder{}).Double(1, d.UIDPowerMah[u])
		stats.Message(5, (&wire.Builder{}).Int32(1, u).Message(18, item))
	}
	system := (&wire.Builder{}).
		Message(14, (&wire.Builder{}).Int32(11, d.ConnectivityChanges)).
		Message(17, (&wire.Builder{}).Double(1, 3000).Double(2, d.ComputedPowerMah))
	stats.Message(6, system)
	return (&wire.Builder{}).Message(1, stats).Bytes()
}

// Checkin renders d the way `dumpsys batterystats --checkin` does.
func (d Dump) Checkin() string {
	var sb strings.Builder
	sb.WriteString("9,0,i,vers,36,214,PPR1.180610.011,PPR1.180610.011\n")
	fmt.Fprintf(&sb, "9,0,l,m,120,0,0,5000,0,0,110,0,%d,0,0,0,0,0,0\n", d.ConnectivityChanges)
	fmt.Fprintf(&sb, "9,0,l,pws,3000,%g,100,200\n", d.ComputedPowerMah)
	sb.WriteString("9,0,l,pwi,scrn,12.5,0,0,0\n")
	for _, u := range d.sortedUIDs() {
		fmt.Fprintf(&sb, "9,%d,l,pwi,uid,%g,0,0,0\n", u, d.UIDPowerMah[u])
	}
	return sb.String()
}
