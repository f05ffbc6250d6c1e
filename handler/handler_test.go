package handler_test

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lasso-sustech/cluster-tap/errkind"
	"github.com/lasso-sustech/cluster-tap/handler"
	"github.com/lasso-sustech/cluster-tap/manifest"
	"github.com/lasso-sustech/cluster-tap/taskpool"
	"github.com/lasso-sustech/cluster-tap/wire"
	liberr "github.com/nabbar/golib/errors"
)

type fakeState struct {
	m    *manifest.Manifest
	pool *taskpool.Pool
}

func (f *fakeState) Manifest() *manifest.Manifest { return f.m }
func (f *fakeState) Pool() *taskpool.Pool          { return f.pool }
func (f *fakeState) ReloadManifest() error         { return nil }

func newFakeState() *fakeState {
	return &fakeState{
		m: &manifest.Manifest{
			Functions: map[string]manifest.FunctionConfig{
				"ping": {Description: "ping", Commands: []string{"echo -n pong"}},
			},
		},
		pool: taskpool.NewPool(),
	}
}

func codeOf(t *testing.T, err error) liberr.CodeError {
	t.Helper()
	le, ok := err.(liberr.Error)
	if !ok {
		t.Fatalf("expected a liberr.Error, got %T (%v)", err, err)
	}
	return le.GetCode()
}

func TestDescribeClientListsFunctions(t *testing.T) {
	s := newFakeState()
	v, err := handler.DescribeClient(s, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := v.(map[string]string)
	if out["ping"] != "ping" {
		t.Fatalf("got %v", out)
	}
}

func TestInfoClientUnknownFunction(t *testing.T) {
	s := newFakeState()
	args, _ := json.Marshal(map[string]string{"function": "missing"})
	_, err := handler.InfoClient(s, args)
	if err == nil {
		t.Fatal("expected an error for an unknown function")
	}
	if codeOf(t, err) != errkind.InvalidRequest {
		t.Fatalf("got %v", err)
	}
}

func TestExecuteThenFetchRoundTrip(t *testing.T) {
	s := newFakeState()
	args, _ := json.Marshal(map[string]interface{}{"function": "ping"})
	v, err := handler.ExecuteClient(s, args)
	if err != nil {
		t.Fatal(err)
	}
	tid := v.(map[string]string)["tid"]

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fargs, _ := json.Marshal(map[string]string{"tid": tid})
		_, ferr := handler.FetchClient(s, fargs)
		if ferr == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never completed")
}

func loadManifestWithCodebase(t *testing.T) (*manifest.Manifest, string) {
	t.Helper()
	dir := t.TempDir()
	body := `{"codebase": {"lib": ["**/*.py"]}}`
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Load(path, "node")
	if err != nil {
		t.Fatal(err)
	}
	return m, dir
}

func TestSyncCodeProxyToClientRoundTrip(t *testing.T) {
	serverManifest, srcDir := loadManifestWithCodebase(t)
	clientManifest, dstDir := loadManifestWithCodebase(t)

	if err := os.MkdirAll(filepath.Join(srcDir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "lib", "a.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	args, _ := json.Marshal(map[string]string{"basename": "lib"})

	type proxyResult struct {
		raw json.RawMessage
		err error
	}
	proxyCh := make(chan proxyResult, 1)
	go func() {
		raw, err := handler.SyncCodeProxy(serverConn, serverManifest, args)
		proxyCh <- proxyResult{raw, err}
	}()

	reqName, reqArgs, err := wire.ReadRequest(clientConn)
	if err != nil {
		t.Fatal(err)
	}
	if reqName != handler.SyncCode {
		t.Fatalf("got request %q", reqName)
	}
	s := &fakeState{m: clientManifest, pool: taskpool.NewPool()}
	v, cerr := handler.SyncCodeClient(clientConn, s, reqArgs)
	if cerr != nil {
		t.Fatalf("client side failed: %v", cerr)
	}
	if err := wire.WriteReply(clientConn, v); err != nil {
		t.Fatal(err)
	}

	res := <-proxyCh
	if res.err != nil {
		t.Fatalf("proxy side failed: %v", res.err)
	}
	if wireErr := wire.AsError(res.raw); wireErr != nil {
		t.Fatalf("unexpected error reply: %v", wireErr)
	}
	if _, err := os.Stat(filepath.Join(dstDir, "lib", "a.py")); err != nil {
		t.Fatalf("pushed file missing on the client side: %v", err)
	}
}

func TestSyncCodeProxyRejectsUnknownBasename(t *testing.T) {
	serverManifest, _ := loadManifestWithCodebase(t)
	serverConn, _ := net.Pipe()
	defer serverConn.Close()

	args, _ := json.Marshal(map[string]string{"basename": "nope"})
	_, err := handler.SyncCodeProxy(serverConn, serverManifest, args)
	if err == nil {
		t.Fatal("expected an error for an undeclared basename")
	}
	if codeOf(t, err) != errkind.CodebaseNonExist {
		t.Fatalf("got %v", err)
	}
}

func TestFetchMissingTidReportsNoResponse(t *testing.T) {
	s := newFakeState()
	args, _ := json.Marshal(map[string]string{"tid": "nonexist"})
	_, err := handler.FetchClient(s, args)
	if err == nil {
		t.Fatal("expected an error")
	}
	if codeOf(t, err) != errkind.NoResponse {
		t.Fatalf("got %v", err)
	}
}
