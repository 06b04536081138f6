package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pgshortener/internal/domain"
	"pgshortener/internal/postgres"

	"github.com/lib/pq"
)

// DefaultTable is the table PostgresRepository reads and writes.
const DefaultTable = "urls"

const recordColumns = "id, url, short_code, created_at, updated_at, access_count"

const numRecordColumns = 6

// Text renderings of timestamptz under DateStyle ISO, for whole-hour,
// minute and second zone offsets.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07:00:00",
	time.RFC3339Nano,
}

// PostgresRepository stores records in a PostgreSQL table through the pooled
// store. Each method runs a single statement.
type PostgresRepository struct {
	db    postgres.Querier
	table string
}

// NewPostgresRepository creates a repository over db. table may be
// schema-qualified ("public.urls"); an empty table means DefaultTable.
func NewPostgresRepository(db postgres.Querier, table string) *PostgresRepository {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresRepository{db: db, table: quoteTable(table)}
}

func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// SaveIfNotExists inserts the record unless the short code is taken.
func (r *PostgresRepository) SaveIfNotExists(ctx context.Context, record *domain.URLRecord) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (url, short_code, created_at, updated_at, access_count) VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (short_code) DO NOTHING RETURNING id", r.table)

	id, err := postgres.Query(ctx, r.db, query, postgres.Params{
		{Name: "url", Value: record.LongURL},
		{Name: "short_code", Value: record.ShortCode},
		{Name: "created_at", Value: formatTimestamp(record.CreatedAt)},
		{Name: "updated_at", Value: formatTimestamp(record.UpdatedAt)},
		{Name: "access_count", Value: strconv.FormatInt(record.AccessCount, 10)},
	}, postgres.FirstValue)
	if err != nil {
		return wrapStoreErr("save "+record.ShortCode, err)
	}
	if id == "" {
		return domain.ErrCodeExists
	}

	record.ID, err = strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("save %s: parse id %q: %w", record.ShortCode, id, err)
	}
	return nil
}

func (r *PostgresRepository) FindByURL(ctx context.Context, url string) (*domain.URLRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE url = $1 ORDER BY id LIMIT 1", recordColumns, r.table)
	return r.queryRecord(ctx, "find url", query, postgres.Params{{Name: "url", Value: url}})
}

func (r *PostgresRepository) FindByShortCode(ctx context.Context, code string) (*domain.URLRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE short_code = $1", recordColumns, r.table)
	return r.queryRecord(ctx, "find "+code, query, postgres.Params{{Name: "short_code", Value: code}})
}

func (r *PostgresRepository) IncrementAccessCount(ctx context.Context, code string) error {
	query := fmt.Sprintf("UPDATE %s SET access_count = access_count + 1 WHERE short_code = $1 RETURNING access_count", r.table)
	return r.expectRow(ctx, "increment "+code, query, postgres.Params{{Name: "short_code", Value: code}})
}

func (r *PostgresRepository) UpdateURL(ctx context.Context, code, url string, updatedAt time.Time) (*domain.URLRecord, error) {
	query := fmt.Sprintf("UPDATE %s SET url = $1, updated_at = $2 WHERE short_code = $3 RETURNING %s", r.table, recordColumns)
	return r.queryRecord(ctx, "update "+code, query, postgres.Params{
		{Name: "url", Value: url},
		{Name: "updated_at", Value: formatTimestamp(updatedAt)},
		{Name: "short_code", Value: code},
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, code string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE short_code = $1 RETURNING id", r.table)
	return r.expectRow(ctx, "delete "+code, query, postgres.Params{{Name: "short_code", Value: code}})
}

func (r *PostgresRepository) queryRecord(ctx context.Context, op, query string, params postgres.Params) (*domain.URLRecord, error) {
	record, err := postgres.Query(ctx, r.db, query, params, decodeRecord)
	if err != nil {
		return nil, wrapStoreErr(op, err)
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

func (r *PostgresRepository) expectRow(ctx context.Context, op, query string, params postgres.Params) error {
	found, err := postgres.Query(ctx, r.db, query, params, postgres.HasRows)
	if err != nil {
		return wrapStoreErr(op, err)
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

// decodeRecord reads the first row of a recordColumns result. It returns
// nil when there are no rows.
func decodeRecord(rows postgres.Rows) (*domain.URLRecord, error) {
	records := rows.Chunk(numRecordColumns)
	if len(records) == 0 {
		return nil, nil
	}
	f := records[0]

	id, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode id %q: %w", f[0], err)
	}
	createdAt, err := parseTimestamp(f[3])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	updatedAt, err := parseTimestamp(f[4])
	if err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	accessCount, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode access_count %q: %w", f[5], err)
	}

	return &domain.URLRecord{
		ID:          id,
		LongURL:     nullToEmpty(f[1]),
		ShortCode:   nullToEmpty(f[2]),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		AccessCount: accessCount,
	}, nil
}

func nullToEmpty(v string) string {
	if v == postgres.NullSentinel {
		return ""
	}
	return v
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// wrapStoreErr marks pool exhaustion and a closed pool as
// domain.ErrUnavailable, keeping the store error in the chain.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, postgres.ErrAcquireTimeout) || errors.Is(err, postgres.ErrPoolClosed) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
