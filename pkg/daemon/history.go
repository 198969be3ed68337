package daemon

import (
	"encoding/json"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/statsval/pkg/types"
)

// RunHistory records the last N finished runs and persists them as JSON.
type RunHistory struct {
	MaxRecordCount int
	Runs           []types.Run
	mu             *sync.Mutex
	path           string
}

// NewRunHistory returns an empty RunHistory persisted to path. An empty
// path keeps the history in memory only.
func NewRunHistory(maxRecordCount int, path string) *RunHistory {
	return &RunHistory{
		MaxRecordCount: maxRecordCount,
		Runs:           make([]types.Run, 0),
		mu:             &sync.Mutex{},
		path:           path,
	}
}

// Load reads the persisted history. A missing file leaves it empty.
func (h *RunHistory) Load() error {
	if h.path == "" {
		return nil
	}
	b, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to read run history %s", h.path)
	}

	var runs []types.Run
	if err := json.Unmarshal(b, &runs); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal run history %s", h.path)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.Runs = runs
	h.trim()
	return nil
}

// Add appends a finished run, dropping the oldest beyond MaxRecordCount,
// and persists the history.
func (h *RunHistory) Add(run types.Run) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Runs = append(h.Runs, run)
	h.trim()

	if err := h.persist(); err != nil {
		logrus.WithError(err).Warn("failed to persist run history")
	}
}

// SetMaxRecordCount changes the capacity, trimming old runs if needed.
func (h *RunHistory) SetMaxRecordCount(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.MaxRecordCount = n
	h.trim()
}

// List returns the runs, oldest first.
func (h *RunHistory) List() []types.Run {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]types.Run(nil), h.Runs...)
}

// Get returns the run with id.
func (h *RunHistory) Get(id string) (types.Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].ID == id {
			return h.Runs[i], true
		}
	}
	return types.Run{}, false
}

// Latest returns the most recent run.
func (h *RunHistory) Latest() (types.Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.Runs) == 0 {
		return types.Run{}, false
	}
	return h.Runs[len(h.Runs)-1], true
}

func (h *RunHistory) trim() {
	if h.MaxRecordCount > 0 && len(h.Runs) > h.MaxRecordCount {
		h.Runs = append([]types.Run(nil), h.Runs[len(h.Runs)-h.MaxRecordCount:]...)
	}
}

func (h *RunHistory) persist() error {
	if h.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(h.Runs, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal run history")
	}
	if err := os.WriteFile(h.path, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write run history %s", h.path)
	}
	return nil
}
