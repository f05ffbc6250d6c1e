package wire

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ChunkSize is the size of a single file-push data frame.
const ChunkSize = 4096

// pushTimeout bounds each frame read while a push is in progress, so a
// stalled sender cannot wedge the receiver's request loop forever.
const pushTimeout = 1 * time.Second

var endSentinel = []byte("@end")

// SendFiles pushes every file under root matching any of globs, one at a
// time, as a path frame followed by zero or more chunk frames and a
// terminating "@end" sentinel frame. An empty path frame closes the
// session.
func SendFiles(conn net.Conn, root string, globs []string) error {
	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, g := range globs {
			if ok, _ := doublestar.Match(g, rel); ok {
				paths = append(paths, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, rel := range paths {
		if err := sendOneFile(conn, root, rel); err != nil {
			return err
		}
	}
	return WriteFrame(conn, nil)
}

func sendOneFile(conn net.Conn, root, rel string) error {
	f, err := os.Open(filepath.Join(root, rel))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteFrame(conn, []byte(rel)); err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := WriteFrame(conn, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return WriteFrame(conn, endSentinel)
}

// ReceiveFiles drains a file-push session from conn, accepting each pushed
// file into root iff its relative path matches one of globs; files that do
// not match are still drained (so the stream stays in sync) but discarded.
// Accepted files are written to a temp file first and atomically renamed
// into place.
func ReceiveFiles(conn net.Conn, root string, globs []string) error {
	defer conn.SetReadDeadline(time.Time{})

	for {
		conn.SetReadDeadline(time.Now().Add(pushTimeout))
		rel, err := ReadFrame(conn)
		if err != nil {
			return err
		}
		if len(rel) == 0 {
			return nil
		}
		path := string(rel)

		accept := false
		for _, g := range globs {
			if ok, _ := doublestar.Match(g, path); ok {
				accept = true
				break
			}
		}

		if err := receiveOneFile(conn, root, path, accept); err != nil {
			return err
		}
	}
}

func receiveOneFile(conn net.Conn, root, rel string, accept bool) error {
	var (
		tmp *os.File
		err error
	)
	if accept {
		if err = os.MkdirAll(filepath.Dir(filepath.Join(root, rel)), 0o755); err != nil {
			return err
		}
		tmp, err = os.CreateTemp(filepath.Dir(filepath.Join(root, rel)), ".push-*")
		if err != nil {
			return err
		}
		defer tmp.Close()
	}

	for {
		conn.SetReadDeadline(time.Now().Add(pushTimeout))
		chunk, err := ReadFrame(conn)
		if err != nil {
			if tmp != nil {
				os.Remove(tmp.Name())
			}
			return err
		}
		if isEndSentinel(chunk) {
			break
		}
		if tmp != nil {
			if _, err := tmp.Write(chunk); err != nil {
				os.Remove(tmp.Name())
				return err
			}
		}
	}

	if tmp == nil {
		return nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(root, rel))
}

func isEndSentinel(b []byte) bool {
	if len(b) != len(endSentinel) {
		return false
	}
	for i := range b {
		if b[i] != endSentinel[i] {
			return false
		}
	}
	return true
}
