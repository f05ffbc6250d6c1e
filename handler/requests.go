package handler

import (
	"encoding/json"
	"net"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
	"github.com/lasso-sustech/cluster-tap/wire"
)

// Request kind names, shared verbatim between console, server, proxy and
// client roles.
const (
	ListAll      = "list_all"
	Describe     = "describe"
	Info         = "info"
	Reload       = "reload"
	Warmup       = "warmup"
	Execute      = "execute"
	Fetch        = "fetch"
	SyncCode     = "sync_code"
	BatchExecute = "batch_execute"
)

// ListAllServer has no per-client meaning: it answers from the master's own
// client pool and never bypasses to a proxy.
func ListAllServer(s ServerState) map[string]string {
	return s.ListClients()
}

// DescribeClient returns every function's description.
func DescribeClient(c ClientState, _ json.RawMessage) (interface{}, error) {
	m := c.Manifest()
	out := make(map[string]string, len(m.Functions))
	for name, fn := range m.Functions {
		out[name] = fn.Description
	}
	return out, nil
}

type infoArgs struct {
	Function string `json:"function"`
}

// InfoClient returns the full declared configuration of one function.
func InfoClient(c ClientState, args json.RawMessage) (interface{}, error) {
	var req infoArgs
	_ = json.Unmarshal(args, &req)
	fn, ok := c.Manifest().Functions[req.Function]
	if !ok {
		return nil, errkind.New(errkind.InvalidRequest)
	}
	return fn, nil
}

// ReloadClient reloads the manifest from disk, reapplying fractions.
func ReloadClient(c ClientState, _ json.RawMessage) (interface{}, error) {
	if err := c.ReloadManifest(); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, err)
	}
	return map[string]bool{"res": true}, nil
}

// WarmupClient runs the manifest's warmup command list as a task, just like
// execute, but sourced from m.Warmup instead of a named function.
func WarmupClient(c ClientState, _ json.RawMessage) (interface{}, error) {
	m := c.Manifest()
	cfg := manifest.FunctionConfig{Commands: m.Warmup}
	task := c.Pool().NewTask()
	go taskpool.Execute(task, cfg, nil, taskpool.DefaultTimeout)
	return map[string]string{"tid": task.TID}, nil
}

type executeArgs struct {
	Function   string                 `json:"function"`
	Parameters map[string]interface{} `json:"parameters"`
	Timeout    *float64               `json:"timeout"`
}

// ExecuteClient spawns a function's declared commands as a background task
// and returns its tid immediately. A missing or negative timeout runs the
// task with the executor's default deadline.
func ExecuteClient(c ClientState, args json.RawMessage) (interface{}, error) {
	var req executeArgs
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, errkind.New(errkind.InvalidRequest, err)
	}
	fn, ok := c.Manifest().Functions[req.Function]
	if !ok {
		return nil, errkind.New(errkind.InvalidRequest)
	}

	timeout := time.Duration(-1)
	if req.Timeout != nil && *req.Timeout >= 0 {
		timeout = time.Duration(*req.Timeout * float64(time.Second))
	}
	task := c.Pool().NewTask()
	go taskpool.Execute(task, fn, req.Parameters, timeout)
	return map[string]string{"tid": task.TID}, nil
}

type fetchArgs struct {
	Tid string `json:"tid"`
}

// FetchClient returns a previously started task's outputs.
func FetchClient(c ClientState, args json.RawMessage) (interface{}, error) {
	var req fetchArgs
	_ = json.Unmarshal(args, &req)
	results, err := c.Pool().Fetch(req.Tid)
	if err != nil {
		return nil, err
	}
	return results, nil
}

type syncCodeArgs struct {
	Basename string `json:"basename"`
}

// manifestDirer is implemented by ClientState values that can also report
// the directory their manifest was loaded from; sync_code needs it to
// resolve where pushed files land.
type manifestDirer interface {
	ManifestDir() string
}

// SyncCodeClient drains a file-push session from conn, accepting only files
// whose relative path matches one of the globs declared for basename in its
// own manifest.
func SyncCodeClient(conn net.Conn, c ClientState, args json.RawMessage) (interface{}, error) {
	var req syncCodeArgs
	_ = json.Unmarshal(args, &req)

	dir := c.Manifest().Dir()
	if md, ok := c.(manifestDirer); ok {
		dir = md.ManifestDir()
	}

	globs := c.Manifest().CodebaseGlobs(req.Basename)
	if len(globs) == 0 {
		// The sender pushes its file set regardless, so the session must
		// be drained (rejecting every file) to keep the stream framed
		// before the missing basename is reported.
		_ = wire.ReceiveFiles(conn, dir, nil)
		return nil, errkind.New(errkind.CodebaseNonExist)
	}

	if err := wire.ReceiveFiles(conn, dir, globs); err != nil {
		return nil, errkind.New(errkind.StdErr, err)
	}
	return map[string]bool{"res": true}, nil
}

// SyncCodeProxy overrides the default proxy role: it writes the sync_code
// request frame, immediately follows it with the file-push sub-protocol
// (selecting globs from the server's own manifest, not the target's), and
// only then waits for the slave's confirmation reply.
func SyncCodeProxy(conn net.Conn, serverManifest *manifest.Manifest, args json.RawMessage) (json.RawMessage, error) {
	var req syncCodeArgs
	_ = json.Unmarshal(args, &req)

	globs := serverManifest.CodebaseGlobs(req.Basename)
	if len(globs) == 0 {
		return nil, errkind.New(errkind.CodebaseNonExist)
	}

	if err := wire.WriteRequest(conn, SyncCode, args); err != nil {
		return nil, err
	}
	if err := wire.SendFiles(conn, serverManifest.Dir(), globs); err != nil {
		return nil, err
	}
	return wire.ReadReply(conn)
}
