package wire_test

import (
	"bytes"
	"testing"

	"github.com/lasso-sustech/cluster-tap/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	if err := wire.WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty frame, got %q", got)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteRequest(&buf, "execute", map[string]string{"function": "ping"}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	name, args, err := wire.ReadRequest(&buf)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}
	if name != "execute" {
		t.Fatalf("got request %q", name)
	}
	if !bytes.Contains(args, []byte("ping")) {
		t.Fatalf("args missing function name: %s", args)
	}
}

func TestMultipleFramesStayInOrder(t *testing.T) {
	var buf bytes.Buffer
	wire.WriteFrame(&buf, []byte("first"))
	wire.WriteFrame(&buf, []byte("second"))

	first, _ := wire.ReadFrame(&buf)
	second, _ := wire.ReadFrame(&buf)

	if string(first) != "first" || string(second) != "second" {
		t.Fatalf("frames arrived out of order: %q %q", first, second)
	}
}
