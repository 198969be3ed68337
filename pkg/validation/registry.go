package validation

import (
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrUnknownCheck is returned for a check name that is not registered.
	ErrUnknownCheck = pkgerrors.New("unknown check")
	// ErrDuplicateCheck is returned when a name is registered twice.
	ErrDuplicateCheck = pkgerrors.New("check already registered")
)

// CheckFunc runs one validation on the suite's device. A non-nil
// Measurement may accompany a failure.
type CheckFunc func(ctx context.Context, s *Suite) (*Measurement, error)

// Check is a named validation.
type Check struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Run         CheckFunc `json:"-"`
}

// Registry maps check names to checks.
type Registry struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewRegistry returns a Registry holding checks. It panics on duplicates.
func NewRegistry(checks ...Check) *Registry {
	r := &Registry{checks: make(map[string]Check, len(checks))}
	for _, c := range checks {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}

// DefaultRegistry returns the statsd versus BatteryStats checks.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Check{
			Name:        CheckConnectivityStateChange,
			Description: "statsd CONNECTIVITY_STATE_CHANGED count equals BatteryStats connectivity changes after an airplane mode toggle",
			Run:         checkConnectivityStateChange,
		},
		Check{
			Name:        CheckPowerUse,
			Description: "statsd DEVICE_CALCULATED_POWER_USE agrees with the BatteryStats power summary after a CPU workload",
			Run:         checkPowerUse,
		},
		Check{
			Name:        CheckPowerBlameUID,
			Description: "statsd DEVICE_CALCULATED_POWER_BLAME_UID agrees with BatteryStats for the device test uid",
			Run:         checkPowerBlameUID,
		},
	)
}

// Register adds c.
func (r *Registry) Register(c Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.checks[c.Name]; ok {
		return pkgerrors.Wrapf(ErrDuplicateCheck, "%q", c.Name)
	}
	r.checks[c.Name] = c
	return nil
}

// Get returns the check called name.
func (r *Registry) Get(name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Checks returns the registered checks sorted by name.
func (r *Registry) Checks() []Check {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	checks := make([]Check, 0, len(names))
	for _, n := range names {
		checks = append(checks, r.checks[n])
	}
	return checks
}
