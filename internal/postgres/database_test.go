package postgres_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pgshortener/internal/postgres"
	"pgshortener/internal/postgres/postgrestest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T, client *postgrestest.Client, size int) *postgres.Database {
	t.Helper()
	cfg, err := postgres.NewConnectionConfig("localhost", "user", "pass", "db", 5432)
	require.NoError(t, err)

	db, err := postgres.NewDatabase(cfg, client, postgres.PoolConfig{
		Size:           size,
		AcquireTimeout: 100 * time.Millisecond,
		AcquireTick:    10 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(db.Disconnect)
	return db
}

func TestDatabase_Execute(t *testing.T) {
	client := postgrestest.NewClient()
	db := newTestDatabase(t, client, 2)

	err := db.Execute(context.Background(), "INSERT INTO urls (url, short_code) VALUES ($1, $2)", postgres.Params{
		{Name: "url", Value: "https://example.com"},
		{Name: "short_code", Value: "abc123"},
	})
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "INSERT INTO urls (url, short_code) VALUES ($1, $2)", calls[0].Query)
	assert.Equal(t, [][]byte{[]byte("https://example.com"), []byte("abc123")}, calls[0].Values)
	assert.Equal(t, 2, db.Pool().Count())
}

func TestDatabase_ExecuteSendsEmptyValueAsNull(t *testing.T) {
	client := postgrestest.NewClient()
	db := newTestDatabase(t, client, 1)

	err := db.Execute(context.Background(), "UPDATE urls SET url = $1 WHERE short_code = $2", postgres.Params{
		{Name: "url", Value: ""},
		{Name: "short_code", Value: "abc123"},
	})
	require.NoError(t, err)

	values := client.Calls()[0].Values
	require.Len(t, values, 2)
	assert.Nil(t, values[0])
	assert.Equal(t, []byte("abc123"), values[1])
}

func TestDatabase_ExecuteRejectedStatement(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Fatal("ERROR:  syntax error at or near \"SELEC\"\n")
	})
	db := newTestDatabase(t, client, 2)

	err := db.Execute(context.Background(), "SELEC 1", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, postgres.ErrExecute)
	assert.ErrorIs(t, err, postgres.ErrStore)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, 2, db.Pool().Count(), "connection must be back in the pool")

	lease, err := db.Pool().Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, db.Pool().Release(context.Background(), lease))
}

func TestDatabase_ExecuteRequiresCommandOK(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Tuples(1, postgrestest.Row("1"))
	})
	db := newTestDatabase(t, client, 1)

	err := db.Execute(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, postgres.ErrExecute)
}

func TestDatabase_ExecuteQueryDecodesRows(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Tuples(3, postgrestest.Row("v1", "v2", nil))
	})
	db := newTestDatabase(t, client, 1)

	rows, err := db.ExecuteQuery(context.Background(), "SELECT a, b, c FROM t", nil)
	require.NoError(t, err)

	assert.Equal(t, postgres.Rows{"v1", "v2", "NULL"}, rows)
	assert.Equal(t, 1, db.Pool().Count())
}

func TestDatabase_ExecuteQueryEmptyFieldIsNull(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Tuples(2,
			postgrestest.Row("a", ""),
			postgrestest.Row("b", "x"),
		)
	})
	db := newTestDatabase(t, client, 1)

	rows, err := db.ExecuteQuery(context.Background(), "SELECT k, v FROM t", nil)
	require.NoError(t, err)

	assert.Equal(t, postgres.Rows{"a", postgres.NullSentinel, "b", "x"}, rows)
	assert.Equal(t, [][]string{{"a", "NULL"}, {"b", "x"}}, rows.Chunk(2))
}

func TestDatabase_ExecuteQueryNoRows(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Tuples(2)
	})
	db := newTestDatabase(t, client, 1)

	rows, err := db.ExecuteQuery(context.Background(), "SELECT k, v FROM t WHERE false", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDatabase_ExecuteQueryRequiresTuples(t *testing.T) {
	client := postgrestest.NewClient()
	db := newTestDatabase(t, client, 1)

	rows, err := db.ExecuteQuery(context.Background(), "DELETE FROM t", nil)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, postgres.ErrExecute)
	assert.Equal(t, 1, db.Pool().Count())
}

func TestDatabase_ResultIsCleared(t *testing.T) {
	client := postgrestest.NewClient()
	var results []*postgrestest.Result
	var mu sync.Mutex
	client.OnExec(func(query string, _ [][]byte) *postgrestest.Result {
		var res *postgrestest.Result
		if strings.HasPrefix(query, "SELECT") {
			res = postgrestest.Tuples(1, postgrestest.Row("1"))
		} else {
			res = postgrestest.Fatal("ERROR: boom")
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		return res
	})
	db := newTestDatabase(t, client, 1)

	_, err := db.ExecuteQuery(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	_ = db.Execute(context.Background(), "UPDATE t SET x = 1", nil)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, 1, res.Cleared())
	}
}

func TestDatabase_FailuresDoNotLeakConnections(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Fatal("ERROR: relation \"missing\" does not exist")
	})
	db := newTestDatabase(t, client, 2)

	for i := 0; i < 10; i++ {
		err := db.Execute(context.Background(), "INSERT INTO missing VALUES (1)", nil)
		require.ErrorIs(t, err, postgres.ErrExecute)
		_, err = db.ExecuteQuery(context.Background(), "SELECT * FROM missing", nil)
		require.ErrorIs(t, err, postgres.ErrExecute)
	}

	assert.Equal(t, 2, db.Pool().Count())
	assert.Equal(t, postgres.PoolStats{Size: 2, Live: 2, Idle: 2, InUse: 0}, db.Pool().Stats())
}

func TestDatabase_ReleasedOnDriverPanic(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		panic("driver exploded")
	})
	db := newTestDatabase(t, client, 1)

	assert.Panics(t, func() {
		_ = db.Execute(context.Background(), "SELECT 1", nil)
	})
	assert.Equal(t, 1, db.Pool().Count())
}

func TestDatabase_BrokenConnectionAfterStatement(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		res := postgrestest.Fatal("server closed the connection unexpectedly")
		res.BreakConn = true
		return res
	})
	db := newTestDatabase(t, client, 1)

	err := db.Execute(context.Background(), "SELECT 1", nil)
	require.ErrorIs(t, err, postgres.ErrExecute)

	conn := client.Conns()[0]
	assert.Equal(t, 1, conn.Resets())
	assert.Equal(t, 1, db.Pool().Count())
}

func TestDatabase_UnrecoverableConnectionJoinsReleaseError(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		res := postgrestest.Fatal("terminating connection due to administrator command")
		res.BreakConn = true
		return res
	})
	db := newTestDatabase(t, client, 1)
	client.Conns()[0].Break(false)

	err := db.Execute(context.Background(), "SELECT 1", nil)

	assert.ErrorIs(t, err, postgres.ErrExecute)
	assert.ErrorIs(t, err, postgres.ErrReset)
	assert.Equal(t, 0, db.Pool().Count())
}

func TestDatabase_StatementOutlivesCallerCancellation(t *testing.T) {
	client := postgrestest.NewClient()
	ctx, cancel := context.WithCancel(context.Background())

	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		cancel()
		return postgrestest.CommandOK()
	})
	db := newTestDatabase(t, client, 1)

	err := db.Execute(ctx, "UPDATE t SET x = 1", nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, db.Pool().Count())
}

func TestDatabase_AcquireTimeoutSurfaces(t *testing.T) {
	client := postgrestest.NewClient()
	db := newTestDatabase(t, client, 1)

	lease, err := db.Pool().Acquire(context.Background())
	require.NoError(t, err)

	err = db.Execute(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, postgres.ErrAcquireTimeout)
	assert.Empty(t, client.Calls())

	require.NoError(t, db.Pool().Release(context.Background(), lease))
}

func TestDatabase_ConnectFailure(t *testing.T) {
	client := postgrestest.NewClient()
	client.FailConnect(1)

	cfg, err := postgres.NewConnectionConfig("localhost", "user", "pass", "db", 5432)
	require.NoError(t, err)
	db, err := postgres.NewDatabase(cfg, client, postgres.PoolConfig{Size: 2}, nil)
	require.NoError(t, err)

	err = db.Connect(context.Background())
	assert.ErrorIs(t, err, postgres.ErrConnect)

	err = db.Execute(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, postgres.ErrPoolClosed)
}

func TestDatabase_TransactionsNotImplemented(t *testing.T) {
	db := newTestDatabase(t, postgrestest.NewClient(), 1)
	ctx := context.Background()

	assert.ErrorIs(t, db.BeginTransaction(ctx), postgres.ErrNotImplemented)
	assert.ErrorIs(t, db.CommitTransaction(ctx), postgres.ErrNotImplemented)
	assert.ErrorIs(t, db.RollbackTransaction(ctx), postgres.ErrNotImplemented)
}

func TestDatabase_ConcurrentStatements(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		time.Sleep(time.Millisecond)
		return postgrestest.Tuples(1, postgrestest.Row("ok"))
	})

	cfg, err := postgres.NewConnectionConfig("localhost", "user", "pass", "db", 5432)
	require.NoError(t, err)
	db, err := postgres.NewDatabase(cfg, client, postgres.PoolConfig{Size: 3, AcquireTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Connect(context.Background()))
	defer db.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := db.ExecuteQuery(context.Background(), "SELECT 'ok'", nil)
			assert.NoError(t, err)
			assert.Equal(t, postgres.Rows{"ok"}, rows)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, db.Pool().Count())
	assert.Len(t, client.Calls(), 30)
}

func TestDatabase_Maintain(t *testing.T) {
	client := postgrestest.NewClient()
	db := newTestDatabase(t, client, 2)

	lease, err := db.Pool().Acquire(context.Background())
	require.NoError(t, err)
	lease.Conn().(*postgrestest.Conn).Break(false)
	require.Error(t, db.Pool().Release(context.Background(), lease))
	require.Equal(t, 1, db.Pool().Count())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		db.Maintain(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return db.Pool().Count() == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Maintain did not stop on cancel")
	}
}

func TestQuery_Decoders(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(query string, _ [][]byte) *postgrestest.Result {
		if strings.Contains(query, "missing") {
			return postgrestest.Tuples(1)
		}
		return postgrestest.Tuples(1, postgrestest.Row("https://example.com"))
	})
	db := newTestDatabase(t, client, 1)
	ctx := context.Background()

	found, err := postgres.Query(ctx, db, "SELECT url FROM urls WHERE short_code = $1", postgres.Params{{Name: "short_code", Value: "abc"}}, postgres.HasRows)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = postgres.Query(ctx, db, "SELECT url FROM urls WHERE short_code = 'missing'", nil, postgres.HasRows)
	require.NoError(t, err)
	assert.False(t, found)

	url, err := postgres.Query(ctx, db, "SELECT url FROM urls WHERE short_code = $1", postgres.Params{{Name: "short_code", Value: "abc"}}, postgres.FirstValue)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)

	url, err = postgres.Query(ctx, db, "SELECT url FROM urls WHERE short_code = 'missing'", nil, postgres.FirstValue)
	require.NoError(t, err)
	assert.Equal(t, "", url)
}

func TestQuery_PropagatesError(t *testing.T) {
	client := postgrestest.NewClient()
	client.OnExec(func(string, [][]byte) *postgrestest.Result {
		return postgrestest.Fatal("ERROR: permission denied")
	})
	db := newTestDatabase(t, client, 1)

	found, err := postgres.Query(context.Background(), db, "SELECT 1", nil, postgres.HasRows)
	assert.False(t, found)
	assert.ErrorIs(t, err, postgres.ErrExecute)
}
