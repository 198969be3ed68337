package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/charlie0129/statsval/pkg/types"
)

func runIDs(runs []types.Run) []string {
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestRunHistoryAdd(t *testing.T) {
	tests := []struct {
		name string
		max  int
		add  []string
		want []string
	}{
		{name: "under capacity", max: 3, add: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "at capacity", max: 2, add: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "over capacity", max: 2, add: []string{"a", "b", "c", "d"}, want: []string{"c", "d"}},
		{name: "unbounded", max: 0, add: []string{"a", "b", "c"}, want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRunHistory(tt.max, "")
			for _, id := range tt.add {
				h.Add(types.Run{ID: id})
			}
			if diff := cmp.Diff(tt.want, runIDs(h.List())); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunHistoryLookup(t *testing.T) {
	h := NewRunHistory(10, "")
	if _, ok := h.Latest(); ok {
		t.Fatal("Latest() on empty history reported a run")
	}
	h.Add(types.Run{ID: "a", State: types.RunPassed})
	h.Add(types.Run{ID: "b", State: types.RunFailed})

	if r, ok := h.Latest(); !ok || r.ID != "b" {
		t.Errorf("Latest() = %v, %v", r.ID, ok)
	}
	if r, ok := h.Get("a"); !ok || r.State != types.RunPassed {
		t.Errorf("Get(a) = %+v, %v", r, ok)
	}
	if _, ok := h.Get("zzz"); ok {
		t.Error("Get(zzz) found a run")
	}

	h.SetMaxRecordCount(1)
	if diff := cmp.Diff([]string{"b"}, runIDs(h.List())); diff != "" {
		t.Errorf("List() after shrink mismatch (-want +got):\n%s", diff)
	}
}

func TestRunHistoryPersist(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json.history.json")
	start := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	h := NewRunHistory(2, p)
	for _, id := range []string{"a", "b", "c"} {
		h.Add(types.Run{ID: id, Trigger: "schedule", Start: start})
	}

	reloaded := NewRunHistory(2, p)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(h.List(), reloaded.List()); diff != "" {
		t.Errorf("reloaded history mismatch (-want +got):\n%s", diff)
	}

	smaller := NewRunHistory(1, p)
	if err := smaller.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff([]string{"c"}, runIDs(smaller.List())); diff != "" {
		t.Errorf("Load() with smaller capacity mismatch (-want +got):\n%s", diff)
	}
}

func TestRunHistoryLoadErrors(t *testing.T) {
	dir := t.TempDir()
	missing := NewRunHistory(5, filepath.Join(dir, "missing.json"))
	if err := missing.Load(); err != nil {
		t.Errorf("Load() of missing file error = %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := NewRunHistory(5, bad).Load(); err == nil {
		t.Error("Load() of corrupt file error = nil")
	}
}
