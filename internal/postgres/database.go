package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// NullSentinel stands in for NULL (and empty) fields in decoded rows.
const NullSentinel = "NULL"

// Param is one named statement parameter. An empty Value is sent as NULL.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered parameter list; position i binds to $i+1.
type Params []Param

func (ps Params) encode() [][]byte {
	values := make([][]byte, len(ps))
	for i, p := range ps {
		if p.Value == "" {
			continue
		}
		values[i] = []byte(p.Value)
	}
	return values
}

// Rows is a flat, row-major sequence of field values.
type Rows []string

// Chunk splits the rows into records of cols fields each.
func (r Rows) Chunk(cols int) [][]string {
	if cols <= 0 {
		return nil
	}
	out := make([][]string, 0, len(r)/cols)
	for i := 0; i+cols <= len(r); i += cols {
		out = append(out, r[i:i+cols])
	}
	return out
}

// Querier is the statement surface the store exposes to its callers.
type Querier interface {
	Execute(ctx context.Context, query string, params Params) error
	ExecuteQuery(ctx context.Context, query string, params Params) (Rows, error)
}

// Database runs statements on pooled connections, holding each connection
// only for the duration of a single statement.
type Database struct {
	config ConnectionConfig
	pool   *ConnectionPool
	logger *slog.Logger
}

// NewDatabase creates a store over a new pool. Call Connect before use.
func NewDatabase(config ConnectionConfig, client Client, poolCfg PoolConfig, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(client, poolCfg, logger)
	if err != nil {
		return nil, err
	}
	return &Database{
		config: config,
		pool:   pool,
		logger: logger,
	}, nil
}

// Pool exposes the underlying pool for observability.
func (d *Database) Pool() *ConnectionPool {
	return d.pool
}

// Connect opens the pool. It fails with ErrConnect unless every connection
// opens.
func (d *Database) Connect(ctx context.Context) error {
	return d.pool.Connect(ctx, d.config.ConnectionParams())
}

// Disconnect closes the pool; see ConnectionPool.Disconnect.
func (d *Database) Disconnect() {
	d.pool.Disconnect()
}

// Execute runs a statement that returns no rows.
func (d *Database) Execute(ctx context.Context, query string, params Params) error {
	out, err := d.run(ctx, query, params)
	if err != nil {
		return err
	}
	defer out.result.Clear()

	if out.result.Status() != StatusCommandOK {
		return errors.Join(newError(ErrExecute, "execute", out.message), out.releaseErr)
	}
	d.logReleaseErr(out.releaseErr)
	return nil
}

// ExecuteQuery runs a statement that returns rows and decodes them.
func (d *Database) ExecuteQuery(ctx context.Context, query string, params Params) (Rows, error) {
	out, err := d.run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	defer out.result.Clear()

	if out.result.Status() != StatusTuplesOK {
		return nil, errors.Join(newError(ErrExecute, "execute query", out.message), out.releaseErr)
	}
	d.logReleaseErr(out.releaseErr)
	return readRows(out.result), nil
}

// BeginTransaction is not supported and always fails with ErrNotImplemented.
func (d *Database) BeginTransaction(context.Context) error {
	return newError(ErrNotImplemented, "begin transaction", "")
}

// CommitTransaction always fails with ErrNotImplemented.
func (d *Database) CommitTransaction(context.Context) error {
	return newError(ErrNotImplemented, "commit transaction", "")
}

// RollbackTransaction always fails with ErrNotImplemented.
func (d *Database) RollbackTransaction(context.Context) error {
	return newError(ErrNotImplemented, "rollback transaction", "")
}

// Maintain replenishes connections lost to failed resets every interval
// until ctx is done.
func (d *Database) Maintain(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.pool.Replenish(ctx); err != nil {
				d.logger.Warn("replenish connection pool", "error", err)
			}
		}
	}
}

type execOutcome struct {
	result     Result
	message    string
	releaseErr error
}

// run brackets one statement with Acquire and Release. The connection is
// released on every path, including a panic inside the driver.
func (d *Database) run(ctx context.Context, query string, params Params) (execOutcome, error) {
	values := params.encode()

	lease, err := d.pool.Acquire(ctx)
	if err != nil {
		return execOutcome{}, err
	}

	stmtCtx := context.WithoutCancel(ctx)
	released := false
	defer func() {
		if !released {
			_ = d.pool.Release(stmtCtx, lease)
		}
	}()

	start := time.Now()
	conn := lease.Conn()
	result := conn.Exec(stmtCtx, query, values)
	message := conn.ErrorMessage()
	d.logger.Debug("sql", "query", query, "params", len(params), "status", result.Status(), "duration", time.Since(start))

	released = true
	releaseErr := d.pool.Release(stmtCtx, lease)

	return execOutcome{result: result, message: message, releaseErr: releaseErr}, nil
}

func (d *Database) logReleaseErr(err error) {
	if err != nil {
		d.logger.Warn("release after successful statement", "error", err)
	}
}

func readRows(res Result) Rows {
	rows, cols := res.NumRows(), res.NumFields()
	data := make(Rows, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if res.IsNull(i, j) || res.Len(i, j) == 0 {
				data = append(data, NullSentinel)
				continue
			}
			data = append(data, res.Value(i, j))
		}
	}
	return data
}

// Query runs a row-returning statement and converts the rows with decode.
func Query[T any](ctx context.Context, q Querier, query string, params Params, decode func(Rows) (T, error)) (T, error) {
	rows, err := q.ExecuteQuery(ctx, query, params)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(rows)
}

// HasRows reports whether the statement returned at least one field.
func HasRows(rows Rows) (bool, error) {
	return len(rows) > 0, nil
}

// FirstValue returns the first field of the first row, or "" if there is
// none.
func FirstValue(rows Rows) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0], nil
}
