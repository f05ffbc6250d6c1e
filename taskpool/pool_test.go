package taskpool_test

import (
	"testing"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
)

func TestNewTaskIdsAreUniqueAndAlphabetic(t *testing.T) {
	p := taskpool.NewPool()
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		task := p.NewTask()
		if seen[task.TID] {
			t.Fatalf("duplicate tid %q", task.TID)
		}
		seen[task.TID] = true
		if len(task.TID) != 8 {
			t.Fatalf("expected an 8-character tid, got %q", task.TID)
		}
		for _, r := range task.TID {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				t.Fatalf("tid %q contains a non-alphabetic rune", task.TID)
			}
		}
	}
}

func TestFetchBeforeCompletionReportsNoResponse(t *testing.T) {
	p := taskpool.NewPool()
	task := p.NewTask()
	_, err := p.Fetch(task.TID)
	if err == nil || err.GetCode() != errkind.NoResponse {
		t.Fatalf("expected NoResponse, got %v", err)
	}
}

func TestFetchUnknownTidReportsNoResponse(t *testing.T) {
	p := taskpool.NewPool()
	_, err := p.Fetch("zzzzzzzz")
	if err == nil || err.GetCode() != errkind.NoResponse {
		t.Fatalf("expected NoResponse for an unknown tid, got %v", err)
	}
}

func TestExecuteSucceedsAndFetchReturnsOutputs(t *testing.T) {
	p := taskpool.NewPool()
	task := p.NewTask()
	cfg := manifest.FunctionConfig{
		Commands: []string{"echo -n hello"},
		Outputs: map[string]manifest.OutputSpec{
			"greeting": {Cmd: "echo -n $output_0", Format: `\w+`},
		},
	}
	taskpool.Execute(task, cfg, nil, time.Second)

	out, err := p.Fetch(task.TID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["greeting"] != "hello" {
		t.Fatalf("got %v", out)
	}
}

func TestExecuteReportsStdErrOnNonZeroExit(t *testing.T) {
	p := taskpool.NewPool()
	task := p.NewTask()
	cfg := manifest.FunctionConfig{Commands: []string{"exit 3"}}
	taskpool.Execute(task, cfg, nil, time.Second)

	_, err := p.Fetch(task.TID)
	if err == nil || err.GetCode() != errkind.StdErr {
		t.Fatalf("expected StdErr, got %v", err)
	}
}

func TestExecuteReportsTimeout(t *testing.T) {
	p := taskpool.NewPool()
	task := p.NewTask()
	cfg := manifest.FunctionConfig{Commands: []string{"sleep 5"}}
	taskpool.Execute(task, cfg, nil, 20*time.Millisecond)

	_, err := p.Fetch(task.TID)
	if err == nil || err.GetCode() != errkind.Timeout {
		t.Fatalf("expected Timeout, got %v", err)
	}
}

func TestExecuteSubstitutesParameters(t *testing.T) {
	p := taskpool.NewPool()
	task := p.NewTask()
	cfg := manifest.FunctionConfig{
		Parameters: map[string]interface{}{"name": "default"},
		Commands:   []string{"echo -n hello $name"},
		Outputs: map[string]manifest.OutputSpec{
			"out": {Cmd: "echo -n $output_0", Format: `.+`},
		},
	}
	taskpool.Execute(task, cfg, map[string]interface{}{"name": "world"}, time.Second)

	out, err := p.Fetch(task.TID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["out"] != "hello world" {
		t.Fatalf("got %v", out)
	}
}
