package master

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
	liberr "github.com/nabbar/golib/errors"
	"github.com/sirupsen/logrus"
)

type pushedRequest struct {
	name string
	args json.RawMessage
}

type pushedReply struct {
	raw json.RawMessage
	err error
}

// ClientEntry is one connected slave: its stream connection, and the FIFO
// pair a server-role handler uses to hand it requests and collect replies.
// run is the sole goroutine reading from and writing to conn, matching the
// "one proxy worker per slave is the sole gatekeeper of its socket"
// invariant.
type ClientEntry struct {
	name string
	addr string
	conn net.Conn
	tx   chan pushedRequest
	rx   chan pushedReply
	d    *Daemon
}

func (e *ClientEntry) Name() string { return e.name }
func (e *ClientEntry) Addr() string { return e.addr }

// Push enqueues a request for this slave; it does not wait for the reply.
func (e *ClientEntry) Push(reqName string, args json.RawMessage) {
	e.tx <- pushedRequest{name: reqName, args: args}
}

// Recv blocks for the next reply in FIFO order.
func (e *ClientEntry) Recv() (json.RawMessage, error) {
	r, ok := <-e.rx
	if !ok {
		return nil, fmt.Errorf("client %q connection closed", e.name)
	}
	return r.raw, r.err
}

// run drains tx and writes each reply to rx, in order. Failures split into
// two classes, the same way the dispatch layer distinguishes them: an error
// from our own request catalogue (raised before any frame was exchanged,
// e.g. an undeclared codebase on sync_code) is folded into an error
// envelope and the worker keeps serving; a transport error means the
// connection to the slave is gone, so the entry removes itself from the
// pool and stops.
func (e *ClientEntry) run() {
	for req := range e.tx {
		var (
			raw json.RawMessage
			err error
		)
		if req.name == handler.SyncCode {
			raw, err = handler.SyncCodeProxy(e.conn, e.d.manifest, req.args)
		} else {
			raw, err = handler.DefaultProxy(e.conn, req.name, req.args)
		}

		if err == nil {
			e.rx <- pushedReply{raw: raw}
			continue
		}

		if le, ok := err.(liberr.Error); ok {
			env, _ := json.Marshal(map[string][2]string{
				"err": {errkind.Name(le.GetCode()), le.StringError()},
			})
			e.rx <- pushedReply{raw: env}
			continue
		}

		e.d.log.Warning(fmt.Sprintf("lost connection to client %q: %v", e.name, err), logrus.Fields{"client": e.name, "error": err.Error()})
		e.rx <- pushedReply{err: err}
		e.d.removeClient(e.name)
		_ = e.conn.Close()
		close(e.rx)
		return
	}
}
