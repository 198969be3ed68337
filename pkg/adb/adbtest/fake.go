// Package adbtest provides a scripted adb.Runner for tests.
package adbtest

import (
	"context"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// Response is the scripted result of one command.
type Response struct {
	Out []byte
	Err error
}

// Call is one recorded invocation.
type Call struct {
	Args  string
	Stdin []byte
}

// Runner answers adb invocations by matching the joined argument list
// against registered substrings. The longest matching key wins. Calls
// without a match succeed with empty output.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []Call
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On registers output for commands containing key. Multiple registrations
// for the same key are consumed in order; the last one repeats.
func (r *Runner) On(key string, out string) *Runner {
	return r.OnBytes(key, []byte(out))
}

// OnBytes is On with binary output.
func (r *Runner) OnBytes(key string, out []byte) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key] = append(r.responses[key], Response{Out: out})
	return r
}

// OnError makes commands containing key fail.
func (r *Runner) OnError(key string, err error) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key] = append(r.responses[key], Response{Err: err})
	return r
}

// Output implements adb.Runner.
func (r *Runner) Output(ctx context.Context, stdin []byte, _ string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "fake runner")
	}

	joined := strings.Join(args, " ")

	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Args: joined, Stdin: stdin})

	best := ""
	for key := range r.responses {
		if strings.Contains(joined, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return nil, nil
	}

	queue := r.responses[best]
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[best] = queue[1:]
	}
	return resp.Out, resp.Err
}

// Calls returns every recorded invocation in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Commands returns the argument strings of every recorded invocation.
func (r *Runner) Commands() []string {
	var cmds []string
	for _, c := range r.Calls() {
		cmds = append(cmds, c.Args)
	}
	return cmds
}

// Index returns the position of the first call containing key, or -1.
func (r *Runner) Index(key string) int {
	for i, c := range r.Commands() {
		if strings.Contains(c, key) {
			return i
		}
	}
	return -1
}
