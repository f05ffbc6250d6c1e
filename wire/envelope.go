package wire

import (
	"encoding/json"
	"io"

	"github.com/lasso-sustech/cluster-tap/errkind"
	liberr "github.com/nabbar/golib/errors"
)

// errEnvelope is the two-element wire form of an error reply: the bounded
// exception class name, and a human-readable message.
type errEnvelope struct {
	Err [2]string `json:"err"`
}

// WriteErrReply frames an error reply using the bounded errkind taxonomy.
func WriteErrReply(w io.Writer, err liberr.Error) error {
	env := errEnvelope{Err: [2]string{errkind.Name(err.GetCode()), err.StringError()}}
	payload, e := json.Marshal(env)
	if e != nil {
		return e
	}
	return WriteFrame(w, payload)
}

// DecodeErr inspects a reply payload and, if it is an error envelope,
// returns the class name and message with ok=true.
func DecodeErr(raw json.RawMessage) (className, message string, ok bool) {
	var env errEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", "", false
	}
	if env.Err[0] == "" {
		return "", "", false
	}
	return env.Err[0], env.Err[1], true
}

// AsError converts a reply payload into a liberr.Error if it carries an
// error envelope, or returns nil otherwise.
func AsError(raw json.RawMessage) liberr.Error {
	name, msg, ok := DecodeErr(raw)
	if !ok {
		return nil
	}
	code := errkind.Lookup(name)
	if msg == "" {
		return code.Error()
	}
	return code.Error(plainError(msg))
}

type plainError string

func (p plainError) Error() string { return string(p) }
