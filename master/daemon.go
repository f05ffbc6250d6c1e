// Package master implements the master daemon: the TCP accept loop that
// registers slaves, the per-slave proxy worker that is the sole reader and
// writer of its stream connection, the UDP IPC surface consoles talk to,
// and the server-role glue that lets the master act as an execution target
// in its own right.
package master

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/lasso-sustech/cluster-tap/handler"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
	"github.com/lasso-sustech/cluster-tap/wire"

	libatm "github.com/nabbar/golib/atomic"
	libctx "github.com/nabbar/golib/context"
	"github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"github.com/sirupsen/logrus"
)

// Daemon is the master node: it owns a manifest and task pool of its own
// (so it can act as an execution target), the pool of connected slaves, and
// the listeners for the control and IPC surfaces.
type Daemon struct {
	name         string
	manifestPath string
	manifest     *manifest.Manifest
	pool         *taskpool.Pool
	clients      libatm.MapTyped[string, *ClientEntry]
	log          logger.Logger
	ctx          libctx.Config[string]
	cancel       context.CancelFunc
}

// New loads the manifest for name from manifestPath and returns a Daemon
// ready to Serve. A master without a manifest file still runs with an empty
// manifest: it serves list_all and forwards requests, singly or batched, to
// its slaves, but declares no functions of its own. The returned Daemon carries its
// own cancellation context, stopped by Shutdown, that ServeControl and
// ServeIPC watch to return cleanly instead of leaking their accept loops.
func New(name, manifestPath string) (*Daemon, error) {
	m, err := manifest.Load(manifestPath, name)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		m = &manifest.Manifest{Name: name}
	}
	log := logger.New(context.Background())
	log.SetLevel(loglvl.InfoLevel)

	bg, cancel := context.WithCancel(context.Background())
	cfg := libctx.New[string](bg)
	cfg.Store("name", name)

	return &Daemon{
		name:         name,
		manifestPath: manifestPath,
		manifest:     m,
		pool:         taskpool.NewPool(),
		clients:      libatm.NewMapTyped[string, *ClientEntry](),
		log:          log,
		ctx:          cfg,
		cancel:       cancel,
	}, nil
}

// Shutdown cancels the daemon's context, causing ServeControl and ServeIPC
// to return once their blocking Accept/Read calls unblock.
func (d *Daemon) Shutdown() {
	d.cancel()
}

// -- handler.ClientState / handler.ServerState -----------------------------

func (d *Daemon) Manifest() *manifest.Manifest { return d.manifest }
func (d *Daemon) Pool() *taskpool.Pool         { return d.pool }
func (d *Daemon) ManifestDir() string          { return d.manifest.Dir() }
func (d *Daemon) SelfName() string             { return d.name }

func (d *Daemon) ReloadManifest() error {
	m, err := manifest.Load(d.manifestPath, d.name)
	if err != nil {
		return err
	}
	d.manifest = m
	return nil
}

func (d *Daemon) Lookup(name string) (handler.ClientProxy, bool) {
	e, ok := d.clients.Load(name)
	if !ok {
		return nil, false
	}
	return e, true
}

func (d *Daemon) ListClients() map[string]string {
	out := map[string]string{}
	d.clients.Range(func(name string, e *ClientEntry) bool {
		out[name] = e.addr
		return true
	})
	return out
}

func (d *Daemon) removeClient(name string) {
	d.clients.Delete(name)
	d.log.Info(fmt.Sprintf("client %q removed from the pool", name), logrus.Fields{"client": name})
}

// ServeControl accepts slave registrations on the TCP control port until
// listener is closed or the daemon's context is cancelled.
func (d *Daemon) ServeControl(listener net.Listener) error {
	go func() {
		<-d.ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				return d.ctx.Err()
			}
			return err
		}
		go d.handleRegistration(conn)
	}
}

type registerArgs struct {
	Name string `json:"name"`
}

// handleRegistration reads the slave's one-frame registration ({"name":...})
// off a fresh connection and installs its client pool entry. A duplicate
// name overwrites the prior entry, last writer wins.
func (d *Daemon) handleRegistration(conn net.Conn) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		d.log.Warning(fmt.Sprintf("invalid connection detected: %s", conn.RemoteAddr()), nil)
		conn.Close()
		return
	}
	var reg registerArgs
	if err := json.Unmarshal(frame, &reg); err != nil || reg.Name == "" {
		d.log.Warning(fmt.Sprintf("invalid connection detected: %s", conn.RemoteAddr()), nil)
		conn.Close()
		return
	}

	entry := &ClientEntry{
		name: reg.Name,
		addr: conn.RemoteAddr().String(),
		conn: conn,
		tx:   make(chan pushedRequest, 8),
		rx:   make(chan pushedReply, 8),
		d:    d,
	}
	d.clients.Store(reg.Name, entry)
	d.log.Info(fmt.Sprintf("registered client %q from %s", reg.Name, entry.addr), logrus.Fields{"client": reg.Name, "addr": entry.addr})

	go entry.run()
}
