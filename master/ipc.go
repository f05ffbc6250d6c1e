package master

import (
	"encoding/json"
	"net"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
	"github.com/lasso-sustech/cluster-tap/wire"
	liberr "github.com/nabbar/golib/errors"
)

// ipcRequest is the JSON envelope carried inside a (possibly fragmented)
// IPC datagram: a request kind, an optional target slave name (empty or
// the master's own name means "run on the master"), and the kind's args.
type ipcRequest struct {
	Request string          `json:"request"`
	Target  string          `json:"target,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type ipcReply struct {
	Result interface{} `json:"result,omitempty"`
	Err    *[2]string  `json:"err,omitempty"`
}

// ServeIPC answers UDP datagrams on conn until it returns an error (e.g.
// conn was closed). Requests are processed one at a time and strictly in
// arrival order.
func (d *Daemon) ServeIPC(conn *net.UDPConn) error {
	go func() {
		<-d.ctx.Done()
		conn.Close()
	}()

	for {
		payload, from, err := wire.RecvDatagram(conn)
		if err != nil {
			if d.ctx.Err() != nil {
				return d.ctx.Err()
			}
			return err
		}
		reply := d.handleIPC(payload)
		raw, _ := json.Marshal(reply)
		_ = wire.SendDatagram(conn, raw, from)
	}
}

func (d *Daemon) handleIPC(payload []byte) ipcReply {
	var req ipcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return errReply(errkind.New(errkind.InvalidRequest, err))
	}

	switch req.Request {
	case handler.ListAll:
		return okReply(handler.ListAllServer(d))
	case handler.Describe:
		return d.bypass(handler.Describe, req.Target, req.Args, handler.DescribeClient)
	case handler.Info:
		return d.bypass(handler.Info, req.Target, req.Args, handler.InfoClient)
	case handler.Reload:
		return d.bypass(handler.Reload, req.Target, req.Args, handler.ReloadClient)
	case handler.Warmup:
		return d.bypass(handler.Warmup, req.Target, req.Args, handler.WarmupClient)
	case handler.Execute:
		return d.bypass(handler.Execute, req.Target, req.Args, handler.ExecuteClient)
	case handler.Fetch:
		return d.bypass(handler.Fetch, req.Target, req.Args, handler.FetchClient)
	case handler.SyncCode:
		return d.bypass(handler.SyncCode, req.Target, req.Args, localSyncCode)
	case handler.BatchExecute:
		var items []handler.BatchItem
		_ = json.Unmarshal(req.Args, &items)
		return okReply(handler.BatchExecuteServer(d, items))
	default:
		return errReply(errkind.New(errkind.InvalidRequest))
	}
}

// localSyncCode handles sync_code targeting the master itself: there is no
// stream connection to push files over, so it is a no-op success.
func localSyncCode(_ handler.ClientState, _ json.RawMessage) (interface{}, error) {
	return map[string]bool{"res": true}, nil
}

func (d *Daemon) bypass(reqName, target string, args json.RawMessage, local func(handler.ClientState, json.RawMessage) (interface{}, error)) ipcReply {
	v, err := handler.DefaultServerBypass(d, reqName, target, args, local)
	if err != nil {
		return errReply(err)
	}
	return okReply(v)
}

func okReply(v interface{}) ipcReply { return ipcReply{Result: v} }

func errReply(err error) ipcReply {
	if le, ok := err.(liberr.Error); ok {
		return ipcReply{Err: &[2]string{errkind.Name(le.GetCode()), le.StringError()}}
	}
	return ipcReply{Err: &[2]string{errkind.Name(errkind.Unknown), err.Error()}}
}
