package taskpool

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/manifest"
	liberr "github.com/nabbar/golib/errors"
)

type plainError string

func (p plainError) Error() string { return string(p) }

// DefaultTimeout is the sentinel applied when a caller passes a negative
// timeout to Execute: "run essentially without a deadline".
const DefaultTimeout = 999 * time.Second

type run struct {
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

// Execute runs every command in cfg.Commands concurrently, after a
// single-pass "$K" substitution of cfg.Parameters overlaid by params, polls
// for completion every millisecond up to timeout (a negative timeout
// collapses to DefaultTimeout), kills whatever is still running at the
// deadline, then (if every command exited zero) runs each declared output
// extractor and records the task's result. It is meant to be called in its
// own goroutine; the Task it is given is how the caller observes completion.
func Execute(t *Task, cfg manifest.FunctionConfig, params map[string]interface{}, timeout time.Duration) {
	if timeout < 0 {
		timeout = DefaultTimeout
	}

	merged := mergeParams(cfg.Parameters, params)
	runs := make([]*run, len(cfg.Commands))
	deadline := time.Now().Add(timeout)

	for i, tpl := range cfg.Commands {
		cmdline := substitute(tpl, merged)
		r := &run{done: make(chan struct{})}
		r.cmd = exec.Command("sh", "-c", cmdline)
		r.cmd.Stdout = &r.stdout
		r.cmd.Stderr = &r.stderr
		runs[i] = r

		if err := r.cmd.Start(); err != nil {
			r.err = err
			close(r.done)
			continue
		}
		go func(r *run) {
			r.err = r.cmd.Wait()
			close(r.done)
		}(r)
	}

	for {
		allDone := true
		for _, r := range runs {
			select {
			case <-r.done:
			default:
				allDone = false
			}
		}
		if allDone || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := reapFailures(runs); err != nil {
		t.fail(err)
		return
	}

	results, err := extractOutputs(cfg, merged, runs)
	if err != nil {
		t.fail(err)
		return
	}
	t.succeed(results)
}

// reapFailures kills any run still executing at the deadline, reporting it
// as a Timeout, and surfaces the first (lowest-indexed) failure it finds,
// whether that failure is a non-zero exit or a timeout.
func reapFailures(runs []*run) liberr.Error {
	var (
		firstIdx = -1
		firstErr liberr.Error
	)
	record := func(idx int, err liberr.Error) {
		if firstIdx == -1 || idx < firstIdx {
			firstIdx, firstErr = idx, err
		}
	}

	for i, r := range runs {
		select {
		case <-r.done:
			if ec, ok := r.err.(*exec.ExitError); ok && ec.ExitCode() != 0 {
				record(i, errkind.New(errkind.StdErr, plainError(strings.TrimSpace(r.stderr.String()))))
			} else if r.err != nil {
				record(i, errkind.New(errkind.StdErr, r.err))
			}
		default:
			if r.cmd.Process != nil {
				_ = r.cmd.Process.Kill()
			}
			record(i, errkind.New(errkind.Timeout, fmt.Errorf("command %d did not finish in time", i)))
		}
	}
	return firstErr
}

// extractOutputs runs each declared output command, after substituting the
// captured, repr()-escaped stdout of every prior command ($output_i) and
// the call's own parameters ($K) into its template, then collapses the
// regular-expression matches against the command's stdout: zero matches
// become an empty string, one match is returned scalar, more than one is
// returned as a list.
func extractOutputs(cfg manifest.FunctionConfig, merged map[string]interface{}, runs []*run) (map[string]interface{}, liberr.Error) {
	results := make(map[string]interface{}, len(cfg.Outputs))
	if len(cfg.Outputs) == 0 {
		return results, nil
	}

	outputVars := make(map[string]interface{}, len(runs)+len(merged))
	for k, v := range merged {
		outputVars[k] = v
	}
	for i, r := range runs {
		outputVars[fmt.Sprintf("output_%d", i)] = pyRepr(strings.TrimSpace(r.stdout.String()))
	}

	for key, spec := range cfg.Outputs {
		cmdline := substitute(spec.Cmd, outputVars)
		out, err := exec.Command("sh", "-c", cmdline).Output()
		if err != nil {
			return nil, errkind.New(errkind.StdErr, err)
		}

		re, err := regexp.Compile(spec.Format)
		if err != nil {
			return nil, errkind.New(errkind.InvalidRequest, err)
		}

		var matches []string
		for _, m := range re.FindAllString(string(out), -1) {
			if m != "" {
				matches = append(matches, m)
			}
		}

		switch len(matches) {
		case 0:
			results[key] = ""
		case 1:
			results[key] = matches[0]
		default:
			results[key] = matches
		}
	}
	return results, nil
}
