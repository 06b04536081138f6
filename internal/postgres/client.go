package postgres

import "context"

// ConnStatus is the health of a connection.
type ConnStatus int

const (
	StatusOK ConnStatus = iota
	StatusBad
)

func (s ConnStatus) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "bad"
}

// ResultStatus is the outcome of a statement.
type ResultStatus int

const (
	// StatusCommandOK means the statement succeeded and returned no rows.
	StatusCommandOK ResultStatus = iota
	// StatusTuplesOK means the statement succeeded and returned a row set,
	// possibly empty.
	StatusTuplesOK
	// StatusFatalError means the server rejected the statement.
	StatusFatalError
)

func (s ResultStatus) String() string {
	switch s {
	case StatusCommandOK:
		return "command ok"
	case StatusTuplesOK:
		return "tuples ok"
	default:
		return "fatal error"
	}
}

// Client opens database connections. Connect never fails outright: a
// connection that could not be established reports StatusBad and carries
// the reason in ErrorMessage.
type Client interface {
	Connect(ctx context.Context, params ConnectionParams) Conn
}

// Conn is a single database link. A Conn is not safe for concurrent use;
// the pool guarantees a single holder.
type Conn interface {
	// Status reports the current health. It is evaluated on every call.
	Status() ConnStatus
	// ErrorMessage returns the most recent error reported by the driver.
	ErrorMessage() string
	// Exec runs a parameterized statement. A nil value is sent as NULL.
	Exec(ctx context.Context, query string, values [][]byte) Result
	// Reset closes and reopens the link with the original parameters.
	Reset(ctx context.Context)
	Close() error
}

// Result is a fully buffered statement result. It stays readable after the
// connection that produced it has been released.
type Result interface {
	Status() ResultStatus
	NumRows() int
	NumFields() int
	Value(row, col int) string
	IsNull(row, col int) bool
	Len(row, col int) int
	Clear()
}
