// Package postgrestest provides an in-memory postgres.Client for tests.
package postgrestest

import (
	"context"
	"fmt"
	"sync"

	"pgshortener/internal/postgres"
)

// Call records one statement executed through a fake connection.
type Call struct {
	ConnID int
	Query  string
	Values [][]byte
}

// ExecFunc produces the result for a statement.
type ExecFunc func(query string, values [][]byte) *Result

// Client is a fake postgres.Client. The zero value is not usable; use
// NewClient.
type Client struct {
	mu          sync.Mutex
	conns       []*Conn
	calls       []Call
	exec        ExecFunc
	failConnect func(n int) bool
}

// NewClient returns a client whose statements succeed with no rows.
func NewClient() *Client {
	return &Client{
		exec: func(string, [][]byte) *Result { return CommandOK() },
	}
}

// OnExec sets the function that answers statements.
func (c *Client) OnExec(fn ExecFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exec = fn
}

// FailConnect makes the n-th Connect call (1-based) return a bad connection.
func (c *Client) FailConnect(n int) {
	c.FailConnectWhen(func(i int) bool { return i == n })
}

// FailConnectWhen makes every Connect call for which fn returns true yield
// a bad connection. fn receives the 1-based call number.
func (c *Client) FailConnectWhen(fn func(n int) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failConnect = fn
}

func (c *Client) Connect(_ context.Context, _ postgres.ConnectionParams) postgres.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.conns) + 1
	conn := &Conn{id: n, client: c, resettable: true}
	if c.failConnect != nil && c.failConnect(n) {
		conn.status = postgres.StatusBad
		conn.lastErr = fmt.Sprintf("could not connect (attempt %d)", n)
	}
	c.conns = append(c.conns, conn)
	return conn
}

// Conns returns every connection opened so far, in order.
func (c *Client) Conns() []*Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Conn, len(c.conns))
	copy(out, c.conns)
	return out
}

// Calls returns every executed statement, in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// OpenConns counts connections that have not been closed.
func (c *Client) OpenConns() int {
	c.mu.Lock()
	conns := c.conns
	c.mu.Unlock()

	open := 0
	for _, conn := range conns {
		if !conn.Closed() {
			open++
		}
	}
	return open
}

func (c *Client) record(call Call) ExecFunc {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.exec
}

// Conn is a fake connection.
type Conn struct {
	id     int
	client *Client

	mu         sync.Mutex
	status     postgres.ConnStatus
	lastErr    string
	resettable bool
	hangReset  bool
	closed     bool
	resets     int
}

// ID is the 1-based order in which the connection was opened.
func (c *Conn) ID() int { return c.id }

// Break marks the connection unhealthy. If recoverable, a Reset restores
// it; otherwise Reset leaves it broken.
func (c *Conn) Break(recoverable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = postgres.StatusBad
	c.resettable = recoverable
	c.lastErr = "server closed the connection unexpectedly"
}

// HangReset makes Reset block until its context is done, as a reconnect to
// an unreachable server would, and leaves the connection broken.
func (c *Conn) HangReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hangReset = true
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Resets counts Reset calls.
func (c *Conn) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

func (c *Conn) Status() postgres.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return postgres.StatusBad
	}
	return c.status
}

func (c *Conn) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Conn) Exec(_ context.Context, query string, values [][]byte) postgres.Result {
	exec := c.client.record(Call{ConnID: c.id, Query: query, Values: values})
	res := exec(query, values)
	if res == nil {
		res = CommandOK()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = res.Message
	if res.BreakConn {
		c.status = postgres.StatusBad
	}
	return res
}

func (c *Conn) Reset(ctx context.Context) {
	c.mu.Lock()
	hang := c.hangReset
	c.mu.Unlock()
	if hang {
		<-ctx.Done()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	if hang {
		c.lastErr = "reset failed: " + ctx.Err().Error()
		return
	}
	if c.resettable && !c.closed {
		c.status = postgres.StatusOK
		c.lastErr = ""
		return
	}
	c.lastErr = "reset failed: could not connect to server"
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Result is a fake statement result. A nil field value is NULL.
type Result struct {
	ResultStatus postgres.ResultStatus
	Fields       int
	Rows         [][][]byte
	Message      string
	// BreakConn leaves the executing connection unhealthy.
	BreakConn bool

	mu      sync.Mutex
	cleared int
}

// CommandOK is a successful result with no rows.
func CommandOK() *Result {
	return &Result{ResultStatus: postgres.StatusCommandOK}
}

// Tuples is a successful row-returning result.
func Tuples(fields int, rows ...[][]byte) *Result {
	return &Result{ResultStatus: postgres.StatusTuplesOK, Fields: fields, Rows: rows}
}

// Fatal is a rejected statement carrying the server message.
func Fatal(msg string) *Result {
	return &Result{ResultStatus: postgres.StatusFatalError, Message: msg}
}

// Row builds a result row. Each value is a string or nil for NULL.
func Row(values ...any) [][]byte {
	row := make([][]byte, len(values))
	for i, v := range values {
		switch v := v.(type) {
		case nil:
		case string:
			row[i] = []byte(v)
		case []byte:
			row[i] = v
		default:
			row[i] = []byte(fmt.Sprint(v))
		}
	}
	return row
}

func (r *Result) Status() postgres.ResultStatus { return r.ResultStatus }
func (r *Result) NumRows() int                  { return len(r.Rows) }
func (r *Result) NumFields() int                { return r.Fields }
func (r *Result) Value(row, col int) string     { return string(r.Rows[row][col]) }
func (r *Result) IsNull(row, col int) bool      { return r.Rows[row][col] == nil }
func (r *Result) Len(row, col int) int          { return len(r.Rows[row][col]) }

func (r *Result) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared++
}

// Cleared counts Clear calls.
func (r *Result) Cleared() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared
}
