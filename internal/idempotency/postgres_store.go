package idempotency

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists idempotency cache entries in PostgreSQL, for
// deployments that want the cache to survive a process restart or be
// shared across server instances. This is an interface extension a
// deployer opts into via migrations/; the in-memory default has no such
// requirement.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed idempotency store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the stored response for key, or ErrNotFound if absent or
// expired. Expired rows are treated as missing on read; sweeping deletes
// them separately.
func (p *PostgresStore) Get(ctx context.Context, key string) (*StoredResponse, error) {
	var (
		requestHash string
		statusCode  int
		body        []byte
		headerKeys  pq.StringArray
		headerVals  pq.StringArray
		expiresAt   time.Time
	)

	err := p.db.QueryRowContext(ctx, `
		SELECT request_hash, status_code, body, header_keys, header_values, expires_at
		FROM idempotency_entries WHERE key = $1`, key,
	).Scan(&requestHash, &statusCode, &body, &headerKeys, &headerVals, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(expiresAt) {
		return nil, ErrNotFound
	}

	headers := make(map[string]string, len(headerKeys))
	for i, k := range headerKeys {
		if i < len(headerVals) {
			headers[k] = headerVals[i]
		}
	}

	return &StoredResponse{
		RequestHash: requestHash,
		StatusCode:  statusCode,
		Body:        body,
		Headers:     headers,
	}, nil
}

// Set upserts the stored response for key with the given TTL.
func (p *PostgresStore) Set(ctx context.Context, key string, resp *StoredResponse, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	keys := make(pq.StringArray, 0, len(resp.Headers))
	vals := make(pq.StringArray, 0, len(resp.Headers))
	for k, v := range resp.Headers {
		keys = append(keys, k)
		vals = append(vals, v)
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO idempotency_entries (
			key, request_hash, status_code, body, header_keys, header_values, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status_code = EXCLUDED.status_code,
			body = EXCLUDED.body,
			header_keys = EXCLUDED.header_keys,
			header_values = EXCLUDED.header_values,
			expires_at = EXCLUDED.expires_at`,
		key, resp.RequestHash, resp.StatusCode, resp.Body, keys, vals,
		time.Now().Add(ttl), time.Now(),
	)
	return err
}

// SweepExpired deletes all rows past their TTL and returns the count
// removed. Intended to be called on the same cadence as MemoryStore.Sweep.
func (p *PostgresStore) SweepExpired(ctx context.Context) (int, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM idempotency_entries WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

var _ Store = (*PostgresStore)(nil)
