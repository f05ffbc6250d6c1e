// Package errkind defines the closed set of error kinds that can cross the
// wire between a console, a master and its slaves. Every kind is a
// registered liberr.CodeError; the wire only ever carries the bounded name
// below, never an arbitrary class name to reconstruct.
package errkind

import (
	liberr "github.com/nabbar/golib/errors"
)

const (
	Unknown liberr.CodeError = iota + liberr.MinAvailable
	StdErr
	Timeout
	NoResponse
	InvalidRequest
	AutoDetectFailure
	ClientConnectionLoss
	ClientNotFound
	CodebaseNonExist
)

var names = map[liberr.CodeError]string{
	StdErr:               "StdErrException",
	Timeout:              "TimeoutException",
	NoResponse:           "NoResponseException",
	InvalidRequest:       "InvalidRequestException",
	AutoDetectFailure:    "AutoDetectFailureException",
	ClientConnectionLoss: "ClientConnectionLossException",
	ClientNotFound:       "ClientNotFoundException",
	CodebaseNonExist:     "CodebaseNonExistException",
}

var byName map[string]liberr.CodeError

func init() {
	byName = make(map[string]liberr.CodeError, len(names))
	for code, name := range names {
		byName[name] = code
	}
	liberr.RegisterIdFctMessage(Unknown, message)
}

func message(code liberr.CodeError) string {
	switch code {
	case StdErr:
		return "command exited with a non zero status"
	case Timeout:
		return "command did not terminate within the allotted time"
	case NoResponse:
		return "task has not completed yet"
	case InvalidRequest:
		return "no handler registered for the requested operation"
	case AutoDetectFailure:
		return "no master found on any host of the local subnet"
	case ClientConnectionLoss:
		return "connection to the client was lost"
	case ClientNotFound:
		return "no client registered under that name"
	case CodebaseNonExist:
		return "basename not declared in the codebase"
	default:
		return liberr.UnknownMessage
	}
}

// Name returns the wire-visible exception class name for a registered code.
func Name(code liberr.CodeError) string {
	if n, ok := names[code]; ok {
		return n
	}
	return "UnknownException"
}

// Lookup resolves a wire-visible exception class name back to its code.
// An unrecognised name degrades to Unknown rather than being evaluated.
func Lookup(name string) liberr.CodeError {
	if c, ok := byName[name]; ok {
		return c
	}
	return Unknown
}

// New builds a liberr.Error for code, optionally chaining parent errors.
func New(code liberr.CodeError, parent ...error) liberr.Error {
	return code.Error(parent...)
}
