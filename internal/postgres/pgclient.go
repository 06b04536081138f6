package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const closeTimeout = 5 * time.Second

// PGClient is the production Client built on pgconn.
type PGClient struct{}

// NewPGClient creates a pgconn-backed client.
func NewPGClient() *PGClient {
	return &PGClient{}
}

// Connect opens one connection. Failures are reported through the returned
// Conn's Status and ErrorMessage.
func (c *PGClient) Connect(ctx context.Context, params ConnectionParams) Conn {
	conn := &pgConn{dsn: params.DSN()}
	conn.open(ctx)
	return conn
}

type pgConn struct {
	dsn string

	mu      sync.Mutex
	conn    *pgconn.PgConn
	lastErr string
}

func (c *pgConn) open(ctx context.Context) {
	pc, err := pgconn.Connect(ctx, c.dsn)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.conn = nil
		c.lastErr = err.Error()
		return
	}
	c.conn = pc
	c.lastErr = ""
}

func (c *pgConn) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return StatusBad
	}
	return StatusOK
}

func (c *pgConn) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *pgConn) Exec(ctx context.Context, query string, values [][]byte) Result {
	c.mu.Lock()
	pc := c.conn
	c.mu.Unlock()

	if pc == nil {
		c.setErr("connection is not open")
		return &pgResult{status: StatusFatalError}
	}

	res := pc.ExecParams(ctx, query, values, nil, nil, nil).Read()
	if res.Err != nil {
		c.setErr(res.Err.Error())
		return &pgResult{status: StatusFatalError}
	}
	c.setErr("")

	status := StatusCommandOK
	if len(res.FieldDescriptions) > 0 {
		status = StatusTuplesOK
	}
	return &pgResult{
		status: status,
		fields: len(res.FieldDescriptions),
		rows:   res.Rows,
	}
}

func (c *pgConn) Reset(ctx context.Context) {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old != nil {
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		_ = old.Close(closeCtx)
		cancel()
	}
	c.open(ctx)
}

func (c *pgConn) Close() error {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return old.Close(ctx)
}

func (c *pgConn) setErr(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
}

type pgResult struct {
	status ResultStatus
	fields int
	rows   [][][]byte
}

func (r *pgResult) Status() ResultStatus { return r.status }
func (r *pgResult) NumRows() int         { return len(r.rows) }
func (r *pgResult) NumFields() int       { return r.fields }

func (r *pgResult) Value(row, col int) string {
	return string(r.rows[row][col])
}

func (r *pgResult) IsNull(row, col int) bool {
	return r.rows[row][col] == nil
}

func (r *pgResult) Len(row, col int) int {
	return len(r.rows[row][col])
}

func (r *pgResult) Clear() {
	r.rows = nil
}
