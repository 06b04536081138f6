package postgres

import (
	"errors"
	"strings"
)

// Error kinds. Every error produced by this package matches ErrStore and
// the most specific kind below it, so callers can pick the granularity they
// need with errors.Is.
var (
	ErrStore = errors.New("postgres")

	ErrConfig         = errors.New("invalid connection config")
	ErrExecute        = errors.New("execute failed")
	ErrPool           = errors.New("connection pool")
	ErrConnect        = errors.New("connect failed")
	ErrReset          = errors.New("connection reset failed")
	ErrAcquireTimeout = errors.New("timeout acquiring connection")
	ErrPoolClosed     = errors.New("pool is closed")
	ErrNotImplemented = errors.New("not implemented")
)

// parents maps each kind to the kind it specializes.
var parents = map[error]error{
	ErrConfig:         ErrStore,
	ErrExecute:        ErrStore,
	ErrNotImplemented: ErrStore,
	ErrPool:           ErrStore,
	ErrConnect:        ErrPool,
	ErrReset:          ErrPool,
	ErrAcquireTimeout: ErrPool,
	ErrPoolClosed:     ErrPool,
}

// Error is the concrete error type returned by the pool and the store.
type Error struct {
	Kind  error  // one of the Err* kinds
	Op    string // operation that failed, e.g. "acquire"
	Field string // offending field for ErrConfig
	Msg   string // driver or validation message
	Err   error  // underlying cause, if any
}

func newError(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("postgres: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Field != "" {
		b.WriteString(" (field ")
		b.WriteString(e.Field)
		b.WriteString(")")
	}
	if msg := strings.TrimSpace(e.Msg); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is e's kind or one of its ancestors.
func (e *Error) Is(target error) bool {
	for kind := e.Kind; kind != nil; kind = parents[kind] {
		if kind == target {
			return true
		}
	}
	return false
}

func (e *Error) Unwrap() error {
	return e.Err
}
