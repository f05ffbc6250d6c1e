package wire_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/lasso-sustech/cluster-tap/wire"
)

func TestSendReceiveFilesRoundTrip(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	if err := os.WriteFile(filepath.Join(src, "plugin.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "helper.py"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- wire.SendFiles(client, src, []string{"**/*.py"})
	}()

	if err := wire.ReceiveFiles(server, dst, []string{"**/*.py"}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "plugin.py")); err != nil {
		t.Fatalf("plugin.py not pushed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "sub", "helper.py")); err != nil {
		t.Fatalf("sub/helper.py not pushed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "notes.txt")); err == nil {
		t.Fatal("notes.txt should have been rejected by the glob")
	}
}
