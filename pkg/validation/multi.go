package validation

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DeviceResults is the outcome of a run on one device.
type DeviceResults struct {
	Serial  string   `json:"serial"`
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// RunDevices runs names on every suite concurrently, one goroutine per
// device. A suite-level error on one device does not stop the others; it is
// recorded in that device's DeviceResults. The returned slice follows the
// order of suites.
func RunDevices(ctx context.Context, suites []*Suite, names ...string) []DeviceResults {
	out := make([]DeviceResults, len(suites))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range suites {
		i, s := i, s
		g.Go(func() error {
			results, err := s.Run(ctx, names...)
			dr := DeviceResults{Serial: s.dev.Serial(), Results: results}
			if err != nil {
				dr.Error = err.Error()
			}
			mu.Lock()
			out[i] = dr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Flatten returns every result of every device.
func Flatten(drs []DeviceResults) []Result {
	var all []Result
	for _, dr := range drs {
		all = append(all, dr.Results...)
	}
	return all
}
