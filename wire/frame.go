// Package wire implements the control-channel framing used between a
// console, a master and its slaves: a 4-byte little-endian length prefix
// around a JSON payload for the stream transport, a best-effort fragmented
// form of the same framing for the UDP IPC surface, and the file-push
// sub-protocol layered over a stream connection.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"io"
)

// WriteFrame writes a single length-prefixed frame: a 4-byte little-endian
// length followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame blocks until a full length-prefixed frame has been read.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Request is the envelope carried by every request frame on the stream.
type Request struct {
	Request string          `json:"request"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// WriteRequest marshals and frames a request.
func WriteRequest(w io.Writer, name string, args interface{}) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if string(raw) == "null" {
		raw = nil
	}
	payload, err := json.Marshal(Request{Request: name, Args: raw})
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadRequest reads and unmarshals the next request frame.
func ReadRequest(r io.Reader) (name string, args json.RawMessage, err error) {
	raw, err := ReadFrame(r)
	if err != nil {
		return "", nil, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", nil, err
	}
	return req.Request, req.Args, nil
}

// WriteReply marshals and frames a successful reply.
func WriteReply(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadReply reads the raw bytes of the next reply frame, without attempting
// to decide whether it carries an error envelope; use AsError for that.
func ReadReply(r io.Reader) (json.RawMessage, error) {
	raw, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}
