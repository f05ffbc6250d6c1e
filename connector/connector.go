// Package connector implements the operator-facing client: a single
// request/reply round trip to a master's IPC surface, and a batch pipeline
// builder that lets a caller enqueue several requests before collecting any
// of their results.
package connector

import (
	"encoding/json"
	"net"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/wire"
)

// DefaultMasterAddr is where Dial looks for a master when given no
// address: the IPC port on the local host.
const DefaultMasterAddr = "127.0.0.1:52525"

// Connector talks to one master's IPC (UDP) surface on behalf of one
// client name; requests that name a different target pass it explicitly.
type Connector struct {
	Client  string
	conn    *net.UDPConn
	addr    *net.UDPAddr
	timeout time.Duration
}

// Dial opens a UDP socket addressed at masterAddr (host:port, empty for
// DefaultMasterAddr), speaking on behalf of client ("" to only query the
// master itself).
func Dial(client, masterAddr string) (*Connector, error) {
	if masterAddr == "" {
		masterAddr = DefaultMasterAddr
	}
	addr, err := net.ResolveUDPAddr("udp", masterAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &Connector{Client: client, conn: conn, addr: addr, timeout: 5 * time.Second}, nil
}

// Close releases the underlying socket.
func (c *Connector) Close() error { return c.conn.Close() }

type request struct {
	Request string          `json:"request"`
	Target  string          `json:"target,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type reply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Err    *[2]string      `json:"err,omitempty"`
}

// Call performs one synchronous request/reply round trip, unmarshalling
// the result into out (if non-nil).
func (c *Connector) Call(reqName, target string, args interface{}, out interface{}) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(request{Request: reqName, Target: target, Args: rawArgs})
	if err != nil {
		return err
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if err := wire.SendDatagram(c.conn, payload, c.addr); err != nil {
		return err
	}

	raw, _, err := wire.RecvDatagram(c.conn)
	if err != nil {
		return err
	}

	var r reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return err
	}
	if r.Err != nil {
		code := errkind.Lookup(r.Err[0])
		if r.Err[1] == "" {
			return code.Error()
		}
		return code.Error(plainError(r.Err[1]))
	}
	if out != nil && len(r.Result) > 0 {
		return json.Unmarshal(r.Result, out)
	}
	return nil
}

type plainError string

func (p plainError) Error() string { return string(p) }

// ListAll returns every connected client's name and address.
func (c *Connector) ListAll() (map[string]string, error) {
	var out map[string]string
	err := c.Call(handler.ListAll, "", nil, &out)
	return out, err
}

// Describe returns the available functions on the connected client, keyed
// by name with their declared descriptions.
func (c *Connector) Describe() (map[string]string, error) {
	var out map[string]string
	err := c.Call(handler.Describe, c.Client, nil, &out)
	return out, err
}

// Info returns the full declared configuration of one function on the
// connected client.
func (c *Connector) Info(function string) (manifest.FunctionConfig, error) {
	var out manifest.FunctionConfig
	err := c.Call(handler.Info, c.Client, map[string]string{"function": function}, &out)
	return out, err
}

// Reload asks the connected client to re-read its manifest from disk.
func (c *Connector) Reload() error {
	return c.Call(handler.Reload, c.Client, nil, nil)
}

// SyncCode pushes the named codebase from the master to the connected
// client ("*" pushes every declared codebase).
func (c *Connector) SyncCode(basename string) error {
	return c.Call(handler.SyncCode, c.Client, map[string]string{"basename": basename}, nil)
}

// Warmup starts the connected client's warmup task, returning its id.
func (c *Connector) Warmup() (string, error) {
	var out struct {
		Tid string `json:"tid"`
	}
	err := c.Call(handler.Warmup, c.Client, nil, &out)
	return out.Tid, err
}

// Execute starts function asynchronously on the connected client and
// returns its task id immediately. Absent parameters use the manifest's
// defaults; a negative timeout runs with the executor's default deadline.
func (c *Connector) Execute(function string, parameters map[string]interface{}, timeoutSeconds float64) (string, error) {
	args := map[string]interface{}{
		"function":   function,
		"parameters": parameters,
		"timeout":    timeoutSeconds,
	}
	var out struct {
		Tid string `json:"tid"`
	}
	err := c.Call(handler.Execute, c.Client, args, &out)
	return out.Tid, err
}

// Fetch returns a previously started task's outputs by id.
func (c *Connector) Fetch(tid string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.Call(handler.Fetch, c.Client, map[string]string{"tid": tid}, &out)
	return out, err
}
