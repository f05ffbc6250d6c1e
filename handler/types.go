// Package handler implements the uniform request-dispatch layer: every
// request kind (list_all, describe, info, reload, warmup, execute, fetch,
// sync_code, batch_execute) is handled by up to four role functions -
// console, server, proxy and client - each operating on the minimal state
// interface it needs. A role function that is not overridden for a given
// request falls back to the defaults in this package (DefaultServerBypass,
// DefaultProxy).
package handler

import (
	"encoding/json"
	"net"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
	"github.com/lasso-sustech/cluster-tap/wire"
)

// ClientProxy is how the master's server role reaches a connected slave: a
// request is pushed onto the slave's FIFO and the matching reply popped
// off, in order. Push/Recv are exposed separately (rather than only a
// synchronous Dispatch) because batch_execute must push several requests
// before draining any replies, to start every target concurrently.
type ClientProxy interface {
	Name() string
	Addr() string
	Push(reqName string, args json.RawMessage)
	Recv() (json.RawMessage, error)
}

// Dispatch is Push followed immediately by Recv: the degenerate,
// single-request-in-flight case of the Push/Recv pair.
func Dispatch(cp ClientProxy, reqName string, args json.RawMessage) (json.RawMessage, error) {
	cp.Push(reqName, args)
	return cp.Recv()
}

// ClientState is the local, per-node state a client-role function needs:
// its manifest, its task pool, and the means to reload the manifest.
type ClientState interface {
	Manifest() *manifest.Manifest
	Pool() *taskpool.Pool
	ReloadManifest() error
}

// ServerState is the state a server-role function needs on the master: its
// own name and ClientState (so requests targeting the master itself can
// fall through to the client role), plus a way to look up a connected
// slave's proxy by name.
type ServerState interface {
	ClientState
	SelfName() string
	Lookup(name string) (ClientProxy, bool)
	ListClients() map[string]string
}

// DefaultServerBypass implements the default server-role behaviour shared
// by describe, info, reload, warmup, execute and fetch: if target is empty
// or the master's own name, handle locally via local; otherwise look the
// target up and hand the request to its proxy.
func DefaultServerBypass(s ServerState, reqName, target string, args json.RawMessage, local func(ClientState, json.RawMessage) (interface{}, error)) (interface{}, error) {
	if target == "" || target == s.SelfName() {
		return local(s, args)
	}
	cp, ok := s.Lookup(target)
	if !ok {
		return nil, errkind.New(errkind.ClientNotFound)
	}
	raw, err := Dispatch(cp, reqName, args)
	if err != nil {
		return nil, errkind.New(errkind.ClientConnectionLoss, err)
	}
	if wireErr := wire.AsError(raw); wireErr != nil {
		return nil, wireErr
	}
	var v interface{}
	_ = json.Unmarshal(raw, &v)
	return v, nil
}

// DefaultProxy implements the default proxy-role behaviour: write the
// request frame and block for the matching reply frame.
func DefaultProxy(conn net.Conn, reqName string, args json.RawMessage) (json.RawMessage, error) {
	if err := wire.WriteRequest(conn, reqName, args); err != nil {
		return nil, err
	}
	return wire.ReadReply(conn)
}
