// Package slave implements the slave daemon: it dials out to a master (or
// auto-detects one on the local subnet), registers under its node name,
// and then serves requests pushed down that single connection until it is
// lost.
package slave

import (
	"context"
	"encoding/json"
	"net"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
	"github.com/lasso-sustech/cluster-tap/wire"

	liberr "github.com/nabbar/golib/errors"
	"github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
	"github.com/sirupsen/logrus"
)

// Daemon is the slave node: its manifest, its task pool, and the single
// connection it serves requests over once registered.
type Daemon struct {
	Name         string
	manifestPath string
	manifest     *manifest.Manifest
	pool         *taskpool.Pool
	log          logger.Logger
}

// New loads the manifest from manifestPath and resolves the node's name:
// altName wins over the manifest's declared name, and a node with neither
// gets a generated "client-<tid>" identity.
func New(altName, manifestPath string) (*Daemon, error) {
	m, err := manifest.Load(manifestPath, altName)
	if err != nil {
		return nil, err
	}
	name := altName
	if name == "" {
		name = m.Name
	}
	if name == "" {
		name = "client-" + taskpool.GenTID()
	}

	log := logger.New(context.Background())
	log.SetLevel(loglvl.InfoLevel)

	return &Daemon{
		Name:         name,
		manifestPath: manifestPath,
		manifest:     m,
		pool:         taskpool.NewPool(),
		log:          log,
	}, nil
}

func (d *Daemon) Manifest() *manifest.Manifest { return d.manifest }
func (d *Daemon) Pool() *taskpool.Pool         { return d.pool }
func (d *Daemon) ManifestDir() string          { return d.manifest.Dir() }

func (d *Daemon) ReloadManifest() error {
	m, err := manifest.Load(d.manifestPath, d.Name)
	if err != nil {
		return err
	}
	d.manifest = m
	return nil
}

// Register dials addr and sends the one-frame registration ({"name":...}),
// returning the live connection. The master does not acknowledge a
// registration; its first use of the connection is a request frame.
func Register(addr, name string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Serve reads request frames off conn forever, dispatching each to the
// matching client-role handler and writing back its reply, until the
// connection is lost.
func (d *Daemon) Serve(conn net.Conn) error {
	defer conn.Close()
	for {
		reqName, args, err := wire.ReadRequest(conn)
		if err != nil {
			return err
		}

		v, rerr := d.dispatch(conn, reqName, args)
		if rerr != nil {
			le, ok := rerr.(liberr.Error)
			if !ok {
				le = errkind.New(errkind.StdErr, rerr)
			}
			if werr := wire.WriteErrReply(conn, le); werr != nil {
				return werr
			}
			d.log.Warning("request "+reqName+" failed: "+le.Error(), logrus.Fields{"request": reqName, "code": le.GetCode()})
			continue
		}
		if werr := wire.WriteReply(conn, v); werr != nil {
			return werr
		}
	}
}

func (d *Daemon) dispatch(conn net.Conn, reqName string, args json.RawMessage) (interface{}, error) {
	switch reqName {
	case handler.Describe:
		return handler.DescribeClient(d, args)
	case handler.Info:
		return handler.InfoClient(d, args)
	case handler.Reload:
		return handler.ReloadClient(d, args)
	case handler.Warmup:
		return handler.WarmupClient(d, args)
	case handler.Execute:
		return handler.ExecuteClient(d, args)
	case handler.Fetch:
		return handler.FetchClient(d, args)
	case handler.SyncCode:
		return handler.SyncCodeClient(conn, d, args)
	default:
		return nil, errkind.New(errkind.InvalidRequest)
	}
}
