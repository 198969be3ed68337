package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/adb/adbtest"
	"github.com/charlie0129/statsval/pkg/batterystats/batterystatstest"
	"github.com/charlie0129/statsval/pkg/client"
	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/events"
	"github.com/charlie0129/statsval/pkg/statsd"
	"github.com/charlie0129/statsval/pkg/statsd/statsdtest"
	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/utils/ptr"
	"github.com/charlie0129/statsval/pkg/validation"
)

const testSerial = "emulator-5554"

type recordingSink struct {
	mu      sync.Mutex
	runID   string
	results []validation.Result
}

func (s *recordingSink) Write(_ context.Context, runID string, results []validation.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.results = append(s.results, results...)
	return nil
}

func (s *recordingSink) Close() {}

func connectivityRunner(statsdCount int64, bsCount int32) *adbtest.Runner {
	return adbtest.NewRunner().
		On("pm list features", "feature:"+adb.FeatureWifi+"\n").
		OnBytes("dump-report", statsdtest.CountReport(statsd.DefaultConfigID, []int64{statsdCount})).
		OnBytes("dumpsys batterystats --proto", batterystatstest.Dump{ConnectivityChanges: bsCount}.Proto())
}

type testServer struct {
	*server
	router http.Handler
	reg    *prometheus.Registry
	sink   *recordingSink
	conf   *config.File
	dir    string
}

func newTestServer(t *testing.T, r *adbtest.Runner) *testServer {
	t.Helper()
	dir := t.TempDir()
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		Serials:                    []string{testSerial},
		ShortWaitMillis:            ptr.To(0),
		LongWaitMillis:             ptr.To(0),
		ConnectivityRestoreSeconds: ptr.To(0),
	}, filepath.Join(dir, "config.json"))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := prometheus.NewRegistry()
	rs := &recordingSink{}
	history := NewRunHistory(10, filepath.Join(dir, "history.json"))
	s := newServer(ctx, conf, r, validation.DefaultRegistry(), history, rs, reg)
	return &testServer{
		server: s,
		router: s.setupRoutes(),
		reg:    reg,
		sink:   rs,
		conf:   conf,
		dir:    dir,
	}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) wait(t *testing.T) {
	t.Helper()
	if !ts.runs.Wait(5 * time.Second) {
		t.Fatalf("run did not finish")
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestTriggerRun(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(2, 2))

	w := ts.do(t, http.MethodPost, "/runs", `{"checks":["connectivity-state-change"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /runs = %d %s", w.Code, w.Body.String())
	}
	id := decode[types.TriggerResponse](t, w).RunID
	if id == "" {
		t.Fatalf("empty run id")
	}
	ts.wait(t)

	w = ts.do(t, http.MethodGet, "/runs/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /runs/%s = %d", id, w.Code)
	}
	run := decode[types.Run](t, w)
	if run.State != types.RunPassed {
		t.Fatalf("run state = %s, error %q", run.State, run.Error)
	}
	if diff := cmp.Diff([]string{testSerial}, run.Serials); diff != "" {
		t.Errorf("serials mismatch (-want +got):\n%s", diff)
	}
	results := run.Results()
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	got := results[0]
	if got.Check != validation.CheckConnectivityStateChange || got.Status != validation.StatusPass {
		t.Errorf("result = %s/%s %q", got.Check, got.Status, got.Message)
	}
	if got.Measurement == nil || got.Measurement.Statsd != 2 || got.Measurement.BatteryStats != 2 {
		t.Errorf("measurement = %+v", got.Measurement)
	}

	w = ts.do(t, http.MethodGet, "/runs/latest", "")
	if latest := decode[types.Run](t, w); latest.ID != id {
		t.Errorf("latest run = %s, want %s", latest.ID, id)
	}
	w = ts.do(t, http.MethodGet, "/runs", "")
	if runs := decode[[]types.Run](t, w); len(runs) != 1 {
		t.Errorf("GET /runs returned %d runs", len(runs))
	}

	ts.sink.mu.Lock()
	if ts.sink.runID != id || len(ts.sink.results) != 1 {
		t.Errorf("sink got run %q with %d results", ts.sink.runID, len(ts.sink.results))
	}
	ts.sink.mu.Unlock()

	if _, err := os.Stat(filepath.Join(ts.dir, "history.json")); err != nil {
		t.Errorf("history not persisted: %v", err)
	}
}

func TestTriggerRunFailure(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(3, 1))

	w := ts.do(t, http.MethodPost, "/runs", `{"checks":["connectivity-state-change"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /runs = %d %s", w.Code, w.Body.String())
	}
	ts.wait(t)

	run := decode[types.Run](t, ts.do(t, http.MethodGet, "/runs/latest", ""))
	if run.State != types.RunFailed {
		t.Fatalf("run state = %s, want %s", run.State, types.RunFailed)
	}
	if diff := cmp.Diff(map[string]int{"fail": 1}, run.Counts()); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestTriggerRunAllChecks(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(1, 1))

	w := ts.do(t, http.MethodPost, "/runs", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /runs = %d %s", w.Code, w.Body.String())
	}
	ts.wait(t)

	run := decode[types.Run](t, ts.do(t, http.MethodGet, "/runs/latest", ""))
	if diff := cmp.Diff(validation.DefaultRegistry().Names(), run.Checks); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}
	if n := len(run.Results()); n != len(run.Checks) {
		t.Errorf("got %d results for %d checks", n, len(run.Checks))
	}
}

func TestTriggerRunRejected(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(1, 1))

	tests := []struct {
		name string
		body string
		busy bool
		want int
	}{
		{name: "unknown check", body: `{"checks":["no-such-check"]}`, want: http.StatusBadRequest},
		{name: "malformed body", body: `{"checks":`, want: http.StatusBadRequest},
		{name: "busy", body: `{}`, busy: true, want: http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.busy {
				ts.runs.mu.Lock()
				ts.runs.current = &types.Run{ID: "in-progress", State: types.RunRunning}
				ts.runs.mu.Unlock()
				defer func() {
					ts.runs.mu.Lock()
					ts.runs.current = nil
					ts.runs.mu.Unlock()
				}()
			}
			w := ts.do(t, http.MethodPost, "/runs", tt.body)
			if w.Code != tt.want {
				t.Fatalf("POST /runs = %d %s, want %d", w.Code, w.Body.String(), tt.want)
			}
		})
	}

	if runs := ts.runs.List(); len(runs) != 0 {
		t.Errorf("rejected triggers recorded %d runs", len(runs))
	}
}

func TestRunNotFound(t *testing.T) {
	ts := newTestServer(t, adbtest.NewRunner())

	for _, path := range []string{"/runs/latest", "/runs/20260101T000000.000Z"} {
		if w := ts.do(t, http.MethodGet, path, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, w.Code)
		}
	}
}

func TestLatestRunInProgress(t *testing.T) {
	ts := newTestServer(t, adbtest.NewRunner())

	ts.runs.mu.Lock()
	ts.runs.current = &types.Run{ID: "in-progress", State: types.RunRunning}
	ts.runs.mu.Unlock()

	run := decode[types.Run](t, ts.do(t, http.MethodGet, "/runs/latest", ""))
	if run.ID != "in-progress" || run.State != types.RunRunning {
		t.Errorf("latest = %s/%s", run.ID, run.State)
	}
	if w := ts.do(t, http.MethodGet, "/runs/in-progress", ""); w.Code != http.StatusOK {
		t.Errorf("GET /runs/in-progress = %d", w.Code)
	}
}

func TestGetChecksAndConfig(t *testing.T) {
	ts := newTestServer(t, adbtest.NewRunner())

	checks := decode[[]validation.Check](t, ts.do(t, http.MethodGet, "/checks", ""))
	var names []string
	for _, c := range checks {
		names = append(names, c.Name)
		if c.Description == "" {
			t.Errorf("check %s has no description", c.Name)
		}
	}
	if diff := cmp.Diff(validation.DefaultRegistry().Names(), names); diff != "" {
		t.Errorf("checks mismatch (-want +got):\n%s", diff)
	}

	fc := decode[config.RawFileConfig](t, ts.do(t, http.MethodGet, "/config", ""))
	if diff := cmp.Diff([]string{testSerial}, fc.Serials); diff != "" {
		t.Errorf("serials mismatch (-want +got):\n%s", diff)
	}
	if fc.ShortWaitMillis == nil || *fc.ShortWaitMillis != 0 {
		t.Errorf("shortWaitMillis = %v", fc.ShortWaitMillis)
	}

	if v := decode[string](t, ts.do(t, http.MethodGet, "/version", "")); v == "" {
		t.Errorf("empty version")
	}
}

func TestSchedule(t *testing.T) {
	ts := newTestServer(t, adbtest.NewRunner())

	st := decode[types.ScheduleStatus](t, ts.do(t, http.MethodGet, "/schedule", ""))
	if st.Enabled || st.NextRun != nil {
		t.Fatalf("schedule enabled by default: %+v", st)
	}

	w := ts.do(t, http.MethodPut, "/schedule", `"@every 1h"`)
	if w.Code != http.StatusCreated {
		t.Fatalf("PUT /schedule = %d %s", w.Code, w.Body.String())
	}
	st = decode[types.ScheduleStatus](t, w)
	if !st.Enabled || st.NextRun == nil || len(st.Next) != upcomingRuns {
		t.Fatalf("PUT /schedule status = %+v", st)
	}
	if got := ts.conf.Schedule(); got != "@every 1h" {
		t.Errorf("config schedule = %q", got)
	}
	saved, err := os.ReadFile(ts.conf.Path())
	if err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if !strings.Contains(string(saved), "@every 1h") {
		t.Errorf("saved config lacks schedule: %s", saved)
	}

	st = decode[types.ScheduleStatus](t, ts.do(t, http.MethodGet, "/schedule", ""))
	if !st.Enabled || st.Cron != "@every 1h" || len(st.Next) != upcomingRuns {
		t.Fatalf("GET /schedule = %+v", st)
	}
	before := *st.NextRun

	if w := ts.do(t, http.MethodPost, "/schedule/skip", ""); w.Code != http.StatusCreated {
		t.Fatalf("POST /schedule/skip = %d %s", w.Code, w.Body.String())
	}
	st = decode[types.ScheduleStatus](t, ts.do(t, http.MethodGet, "/schedule", ""))
	if !st.NextRun.After(before) {
		t.Errorf("skip did not advance next run: %v <= %v", st.NextRun, before)
	}

	if w := ts.do(t, http.MethodDelete, "/schedule", ""); w.Code != http.StatusOK {
		t.Fatalf("DELETE /schedule = %d", w.Code)
	}
	st = decode[types.ScheduleStatus](t, ts.do(t, http.MethodGet, "/schedule", ""))
	if st.Enabled || st.Cron != "" {
		t.Errorf("schedule still enabled: %+v", st)
	}
	if w := ts.do(t, http.MethodPost, "/schedule/skip", ""); w.Code != http.StatusBadRequest {
		t.Errorf("skip without schedule = %d, want 400", w.Code)
	}
	for _, body := range []string{`"1h"`, `"soon"`, `60`} {
		if w := ts.do(t, http.MethodPost, "/schedule/postpone", body); w.Code != http.StatusBadRequest {
			t.Errorf("postpone %s without schedule = %d, want 400", body, w.Code)
		}
	}
}

func TestScheduleInvalid(t *testing.T) {
	ts := newTestServer(t, adbtest.NewRunner())

	for _, body := range []string{`"not a cron"`, `""`, `3`} {
		if w := ts.do(t, http.MethodPut, "/schedule", body); w.Code != http.StatusBadRequest {
			t.Errorf("PUT /schedule %s = %d, want 400", body, w.Code)
		}
	}
	if got := ts.conf.Schedule(); got != "" {
		t.Errorf("invalid schedule stored: %q", got)
	}
}

func TestScheduledRunPrecheck(t *testing.T) {
	r := connectivityRunner(1, 1).On("get-state", "offline\n")
	ts := newTestServer(t, r)

	err := ts.precheck()
	if err == nil || !strings.Contains(err.Error(), testSerial+" is offline") {
		t.Fatalf("precheck() = %v", err)
	}

	ts.runs.mu.Lock()
	ts.runs.current = &types.Run{ID: "in-progress"}
	ts.runs.mu.Unlock()
	if err := ts.precheck(); err == nil || !strings.Contains(err.Error(), ErrBusy.Error()) {
		t.Errorf("precheck() while busy = %v", err)
	}
}

func TestScheduledRun(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(1, 1))

	if err := ts.scheduledRun(); err != nil {
		t.Fatalf("scheduledRun() = %v", err)
	}
	ts.wait(t)

	run, ok := ts.runs.Latest()
	if !ok {
		t.Fatalf("no run recorded")
	}
	if run.Trigger != TriggerSchedule {
		t.Errorf("trigger = %q, want %q", run.Trigger, TriggerSchedule)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(4, 4))

	if w := ts.do(t, http.MethodPost, "/runs", `{"checks":["connectivity-state-change"]}`); w.Code != http.StatusAccepted {
		t.Fatalf("POST /runs = %d", w.Code)
	}
	ts.wait(t)

	families, err := ts.reg.Gather()
	if err != nil {
		t.Fatalf("Gather() = %v", err)
	}
	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, l := range m.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	want := map[string]float64{
		"statsval_check_runs_total,check=connectivity-state-change,status=pass":                          1,
		"statsval_check_duration_seconds,check=connectivity-state-change":                                1,
		"statsval_measurement,check=connectivity-state-change,serial=emulator-5554,source=batterystats": 4,
		"statsval_measurement,check=connectivity-state-change,serial=emulator-5554,source=statsd":       4,
		"statsval_run_in_progress": 0,
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}

	w := ts.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "statsval_check_runs_total") {
		t.Errorf("GET /metrics = %d %s", w.Code, w.Body.String())
	}
}

func TestEvents(t *testing.T) {
	ts := newTestServer(t, connectivityRunner(1, 1))
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	post, err := http.Post(srv.URL+"/runs", "application/json",
		strings.NewReader(`{"checks":["connectivity-state-change"]}`))
	if err != nil {
		t.Fatalf("POST /runs: %v", err)
	}
	_ = post.Body.Close()

	var (
		names     []string
		finished  events.RunFinishedEvent
		check     events.CheckFinishedEvent
		decodeErr error
	)
	err = client.ReadEvents(resp.Body, func(ev events.Event) bool {
		names = append(names, ev.Name)
		switch ev.Name {
		case events.CheckFinished:
			check, decodeErr = events.DecodeAs[events.CheckFinishedEvent](ev)
		case events.RunFinished:
			finished, decodeErr = events.DecodeAs[events.RunFinishedEvent](ev)
			return false
		}
		return decodeErr == nil
	})
	if err != nil {
		t.Fatalf("ReadEvents() = %v", err)
	}
	if decodeErr != nil {
		t.Fatalf("failed to decode event: %v", decodeErr)
	}

	want := []string{events.RunStarted, events.CheckFinished, events.RunFinished}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
	if check.Serial != testSerial || check.Status != string(validation.StatusPass) || check.Statsd != 1 {
		t.Errorf("check.finished = %+v", check)
	}
	if !finished.Passed || finished.Counts["pass"] != 1 {
		t.Errorf("run.finished = %+v", finished)
	}
	ts.wait(t)
}

func TestRequestLogging(t *testing.T) {
	hook := logrustest.NewLocal(logrus.StandardLogger())
	defer hook.Reset()
	ts := newTestServer(t, adbtest.NewRunner())

	if w := ts.do(t, http.MethodGet, "/runs/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("GET /runs/nope = %d, want 404", w.Code)
	}

	for _, e := range hook.AllEntries() {
		if e.Data["path"] == "/runs/nope" {
			if got := e.Data["statusCode"]; got != http.StatusNotFound {
				t.Errorf("logged statusCode = %v, want 404", got)
			}
			if got := e.Data["method"]; got != http.MethodGet {
				t.Errorf("logged method = %v", got)
			}
			return
		}
	}
	t.Fatalf("request was not logged, entries: %d", len(hook.AllEntries()))
}
