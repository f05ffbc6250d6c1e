package taskpool

import (
	"sync"

	"github.com/lasso-sustech/cluster-tap/errkind"
	liberr "github.com/nabbar/golib/errors"
)

// Task tracks the outcome of one asynchronous execute/warmup invocation.
// It is written exactly once, by the goroutine running Execute, and read
// any number of times by Fetch; state transitions are guarded by mu.
type Task struct {
	TID string

	mu      sync.Mutex
	done    bool
	results map[string]interface{}
	err     liberr.Error
}

func newTask(tid string) *Task {
	return &Task{TID: tid}
}

func (t *Task) succeed(results map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.results = results
}

func (t *Task) fail(err liberr.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	t.err = err
}

// Snapshot returns the task's current outputs. A task that has not
// completed yet reports errkind.NoResponse; a task that failed reports its
// recorded error.
func (t *Task) Snapshot() (map[string]interface{}, liberr.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		return nil, errkind.New(errkind.NoResponse)
	}
	if t.err != nil {
		return nil, t.err
	}
	return t.results, nil
}
