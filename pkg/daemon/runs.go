package daemon

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/events"
	"github.com/charlie0129/statsval/pkg/sink"
	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/validation"
)

const sinkTimeout = 30 * time.Second

// Run triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = pkgerrors.New("a validation run is already in progress")

// runManager starts validation runs, at most one at a time.
type runManager struct {
	conf     config.Config
	runner   adb.Runner
	registry *validation.Registry
	history  *RunHistory
	hub      *events.EventHub
	metrics  *Metrics
	sink     sink.Sink

	ctx context.Context
	wg  sync.WaitGroup

	mu      sync.Mutex
	current *types.Run
	lastID  string
}

const runIDLayout = "20060102T150405.000Z"

// newRunID returns a sortable id later than last.
func newRunID(last string) string {
	id := time.Now().UTC().Format(runIDLayout)
	for id <= last {
		time.Sleep(time.Millisecond)
		id = time.Now().UTC().Format(runIDLayout)
	}
	return id
}

// Start validates names and starts a run in the background. An empty names
// runs every registered check.
func (m *runManager) Start(trigger string, names []string) (types.Run, error) {
	for _, n := range names {
		if _, ok := m.registry.Get(n); !ok {
			return types.Run{}, pkgerrors.Wrapf(validation.ErrUnknownCheck, "%q", n)
		}
	}
	if len(names) == 0 {
		names = m.registry.Names()
	}

	m.mu.Lock()
	if m.current != nil {
		id := m.current.ID
		m.mu.Unlock()
		return types.Run{}, pkgerrors.Wrapf(ErrBusy, "run %s", id)
	}
	suites := validation.SuitesFrom(m.conf, m.runner, m.registry)
	run := types.Run{
		ID:      newRunID(m.lastID),
		Trigger: trigger,
		Checks:  names,
		State:   types.RunRunning,
		Start:   time.Now(),
	}
	for _, s := range suites {
		run.Serials = append(run.Serials, s.Device().Serial())
	}
	m.lastID = run.ID
	current := run
	m.current = &current
	m.mu.Unlock()

	m.metrics.SetRunInProgress(true)
	m.hub.Publish(events.RunStarted, events.RunStartedEvent{
		RunID:   run.ID,
		Trigger: trigger,
		Checks:  names,
		Serials: run.Serials,
		Ts:      run.Start.Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"run":     run.ID,
		"trigger": trigger,
		"checks":  names,
	}).Info("validation run started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(run, suites)
	}()
	return run, nil
}

func (m *runManager) execute(run types.Run, suites []*validation.Suite) {
	for _, s := range suites {
		s.Observe(func(r validation.Result) {
			m.metrics.Observe(r)
			ev := events.CheckFinishedEvent{
				RunID:      run.ID,
				Check:      r.Check,
				Serial:     r.Serial,
				Status:     string(r.Status),
				Message:    r.Message,
				DurationMs: r.Duration().Milliseconds(),
				Ts:         r.End.Unix(),
			}
			if r.Measurement != nil {
				ev.Statsd = r.Measurement.Statsd
				ev.BatteryStats = r.Measurement.BatteryStats
			}
			m.hub.Publish(events.CheckFinished, ev)
		})
	}

	var err error
	if len(suites) == 0 {
		err = pkgerrors.New("no devices configured")
	} else {
		run.Devices = validation.RunDevices(m.ctx, suites, run.Checks...)
		if m.ctx.Err() != nil {
			err = pkgerrors.Wrap(m.ctx.Err(), "run interrupted")
		}
	}
	run.Finish(err)

	if m.sink != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), sinkTimeout)
		if werr := m.sink.Write(ctx, run.ID, run.Results()); werr != nil {
			logrus.WithError(werr).WithField("run", run.ID).Warn("failed to export results")
		}
		cancel()
	}

	m.history.Add(run)

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.metrics.SetRunInProgress(false)

	m.hub.Publish(events.RunFinished, events.RunFinishedEvent{
		RunID:  run.ID,
		Passed: run.State == types.RunPassed,
		Counts: run.Counts(),
		Error:  run.Error,
		Ts:     run.End.Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"run":    run.ID,
		"state":  run.State,
		"counts": run.Counts(),
	}).Info("validation run finished")
}

// Current returns a copy of the run in progress.
func (m *runManager) Current() (types.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return types.Run{}, false
	}
	return *m.current, true
}

// Get returns the run with id, in progress or finished.
func (m *runManager) Get(id string) (types.Run, bool) {
	if r, ok := m.Current(); ok && r.ID == id {
		return r, true
	}
	return m.history.Get(id)
}

// Latest returns the run in progress, or the last finished run.
func (m *runManager) Latest() (types.Run, bool) {
	if r, ok := m.Current(); ok {
		return r, true
	}
	return m.history.Latest()
}

// List returns finished runs followed by the run in progress.
func (m *runManager) List() []types.Run {
	runs := m.history.List()
	if r, ok := m.Current(); ok {
		runs = append(runs, r)
	}
	return runs
}

// Wait blocks until background runs finish or timeout passes.
func (m *runManager) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
