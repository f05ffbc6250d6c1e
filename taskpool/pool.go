// Package taskpool implements the asynchronous shell-command task executor:
// every execute/warmup call spawns a Task, tracked by a Pool keyed on a
// short generated id, and run in the background by Execute. Fetch reads
// back a task's outputs once it has finished.
package taskpool

import (
	"github.com/lasso-sustech/cluster-tap/errkind"
	liberr "github.com/nabbar/golib/errors"

	libatm "github.com/nabbar/golib/atomic"
)

// Pool is a thread-safe registry of in-flight and completed tasks.
type Pool struct {
	tasks libatm.MapTyped[string, *Task]
}

// NewPool returns an empty task pool.
func NewPool() *Pool {
	return &Pool{tasks: libatm.NewMapTyped[string, *Task]()}
}

// NewTask allocates a task under a freshly generated id, re-rolling on the
// exceedingly unlikely event of a collision.
func (p *Pool) NewTask() *Task {
	for {
		tid := GenTID()
		t := newTask(tid)
		if actual, loaded := p.tasks.LoadOrStore(tid, t); !loaded {
			return actual
		}
	}
}

// Fetch returns the outputs of the task named by tid. An unknown tid is
// reported the same way as a task still in flight: there is nothing to
// fetch yet.
func (p *Pool) Fetch(tid string) (map[string]interface{}, liberr.Error) {
	t, ok := p.tasks.Load(tid)
	if !ok {
		return nil, errkind.New(errkind.NoResponse)
	}
	return t.Snapshot()
}
