package connector

import (
	"encoding/json"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
)

// BatchSpec is one execute call handed to BatchAll: the target node (""
// or the master's own name runs on the master), the function, its
// parameter overrides, and a timeout in seconds (negative for the
// executor's default).
type BatchSpec struct {
	Target     string
	Function   string
	Parameters map[string]interface{}
	Timeout    float64
}

// pipeItem is one step of a batch pipeline: exactly one of enq, fetch or
// wait is set.
type pipeItem struct {
	enq   *handler.BatchItem
	fetch bool
	wait  time.Duration
}

type targetTid struct {
	target string
	tid    string
}

// BatchExecutor builds an ordered pipeline of enqueue, wait and fetch
// steps, then runs it with Apply. Consecutive enqueues are submitted
// together as one batch_execute request, so every target's task starts
// concurrently; fetch steps drain the accumulated task ids into outputs in
// enqueue order.
type BatchExecutor struct {
	c        *Connector
	pipeline []pipeItem
	pending  []handler.BatchItem
	tids     []targetTid
	outputs  []map[string]interface{}
}

// NewBatch returns an empty pipeline bound to c.
func (c *Connector) NewBatch() *BatchExecutor {
	return &BatchExecutor{c: c}
}

// Batch appends one execute call to the pipeline. Parameters absent from
// the override map use the manifest's declared defaults; a negative
// timeout runs with the executor's default deadline.
func (b *BatchExecutor) Batch(target, function string, parameters map[string]interface{}, timeoutSeconds float64) *BatchExecutor {
	args, err := json.Marshal(map[string]interface{}{
		"function":   function,
		"parameters": parameters,
		"timeout":    timeoutSeconds,
	})
	if err != nil {
		// A parameter map that cannot marshal is a programming error; it
		// surfaces as an InvalidRequest when the pipeline is applied.
		args = nil
	}
	b.pipeline = append(b.pipeline, pipeItem{enq: &handler.BatchItem{Target: target, Args: args}})
	return b
}

// BatchAll appends every spec in list order.
func (b *BatchExecutor) BatchAll(specs []BatchSpec) *BatchExecutor {
	for _, s := range specs {
		b.Batch(s.Target, s.Function, s.Parameters, s.Timeout)
	}
	return b
}

// Wait appends a blocking pause.
func (b *BatchExecutor) Wait(d time.Duration) *BatchExecutor {
	b.pipeline = append(b.pipeline, pipeItem{wait: d})
	return b
}

// Fetch appends a drain step: every task id accumulated so far is fetched,
// in enqueue order, when the pipeline reaches this step.
func (b *BatchExecutor) Fetch() *BatchExecutor {
	b.pipeline = append(b.pipeline, pipeItem{fetch: true})
	return b
}

// Apply walks the pipeline in order: consecutive enqueues accumulate and
// are flushed as one batch_execute the moment a wait or fetch is reached,
// fetch steps resolve the accumulated tids into outputs, waits sleep.
// Remaining enqueues are flushed after the walk. It returns the collected
// outputs in enqueue order; a task whose batch slot carried a null tid
// contributes a nil placeholder. Any error envelope from batch_execute or
// fetch aborts the walk and is returned. The pipeline is reset afterwards
// so the executor can be reused.
func (b *BatchExecutor) Apply() ([]map[string]interface{}, error) {
	defer b.reset()

	for _, item := range b.pipeline {
		if item.enq != nil {
			b.pending = append(b.pending, *item.enq)
			continue
		}
		if len(b.pending) > 0 {
			if err := b.flush(); err != nil {
				return nil, err
			}
		}
		if item.fetch {
			if err := b.drain(); err != nil {
				return nil, err
			}
			continue
		}
		time.Sleep(item.wait)
	}

	if len(b.pending) > 0 {
		if err := b.flush(); err != nil {
			return nil, err
		}
	}
	return b.outputs, nil
}

// flush submits the pending enqueues as one batch_execute and records the
// returned (target, tid) pairs, preserving order.
func (b *BatchExecutor) flush() error {
	var reply handler.BatchReply
	if err := b.c.Call(handler.BatchExecute, "", b.pending, &reply); err != nil {
		return err
	}
	for _, env := range reply.ErrList {
		if env != nil {
			return errkind.Lookup(env[0]).Error(plainError(env[1]))
		}
	}
	for i, tid := range reply.TidList {
		b.tids = append(b.tids, targetTid{target: b.pending[i].Target, tid: tid})
	}
	b.pending = nil
	return nil
}

// drain fetches every accumulated tid, appending one output per tid in
// order; a null tid yields a nil placeholder.
func (b *BatchExecutor) drain() error {
	for _, tt := range b.tids {
		if tt.tid == "" {
			b.outputs = append(b.outputs, nil)
			continue
		}
		var out map[string]interface{}
		if err := b.c.Call(handler.Fetch, tt.target, map[string]string{"tid": tt.tid}, &out); err != nil {
			return err
		}
		b.outputs = append(b.outputs, out)
	}
	b.tids = nil
	return nil
}

func (b *BatchExecutor) reset() {
	b.pipeline, b.pending, b.tids, b.outputs = nil, nil, nil, nil
}
