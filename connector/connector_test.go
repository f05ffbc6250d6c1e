package connector_test

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/lasso-sustech/cluster-tap/connector"
	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/wire"
	liberr "github.com/nabbar/golib/errors"
)

// fakeMaster answers IPC datagrams with canned replies, in order, mirroring
// the envelope shape master.ServeIPC produces. It stops after the last
// canned reply.
func fakeMaster(t *testing.T, replies ...interface{}) *net.UDPAddr {
	t.Helper()
	srv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	go func() {
		for _, reply := range replies {
			_, from, err := wire.RecvDatagram(srv)
			if err != nil {
				return
			}
			raw, _ := json.Marshal(reply)
			_ = wire.SendDatagram(srv, raw, from)
		}
	}()
	return srv.LocalAddr().(*net.UDPAddr)
}

func result(v interface{}) map[string]interface{} {
	return map[string]interface{}{"result": v}
}

func TestCallUnmarshalsResult(t *testing.T) {
	addr := fakeMaster(t, result(map[string]string{"tid": "abcdefgh"}))

	c, err := connector.Dial("slave-a", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	tid, err := c.Execute("ping", nil, -1)
	if err != nil {
		t.Fatal(err)
	}
	if tid != "abcdefgh" {
		t.Fatalf("got %q", tid)
	}
}

func TestCallSurfacesErrorEnvelope(t *testing.T) {
	addr := fakeMaster(t, map[string]interface{}{
		"err": [2]string{errkind.Name(errkind.ClientNotFound), "no such client"},
	})

	c, err := connector.Dial("ghost", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.Execute("ping", nil, -1)
	if err == nil {
		t.Fatal("expected an error")
	}
	le, ok := err.(liberr.Error)
	if !ok {
		t.Fatalf("expected a liberr.Error, got %T", err)
	}
	if le.GetCode() != errkind.ClientNotFound {
		t.Fatalf("got code %v", le.GetCode())
	}
}

func TestBatchPipelineFlushesThenFetchesInOrder(t *testing.T) {
	addr := fakeMaster(t,
		result(map[string]interface{}{
			"tid_list": []string{"tidaaaaa", "tidbbbbb"},
			"err_list": []interface{}{nil, nil},
		}),
		result(map[string]string{"o": "first"}),
		result(map[string]string{"o": "second"}),
	)

	c, err := connector.Dial("", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	outputs, err := c.NewBatch().
		Batch("", "f", nil, -1).
		Batch("slave-a", "f", nil, -1).
		Wait(time.Millisecond).
		Fetch().
		Apply()
	if err != nil {
		t.Fatal(err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected one output per enqueue, got %v", outputs)
	}
	if outputs[0]["o"] != "first" || outputs[1]["o"] != "second" {
		t.Fatalf("outputs out of order: %v", outputs)
	}
}

func TestBatchPipelineReRaisesBatchErrors(t *testing.T) {
	addr := fakeMaster(t,
		result(map[string]interface{}{
			"tid_list": []string{""},
			"err_list": []interface{}{[2]string{errkind.Name(errkind.ClientNotFound), "ghost"}},
		}),
	)

	c, err := connector.Dial("", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, err = c.NewBatch().Batch("ghost", "f", nil, -1).Fetch().Apply()
	if err == nil {
		t.Fatal("expected the batch error to be re-raised")
	}
	le, ok := err.(liberr.Error)
	if !ok || le.GetCode() != errkind.ClientNotFound {
		t.Fatalf("got %v", err)
	}
}
