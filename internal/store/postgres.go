package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx the store needs, satisfied by both a pool and a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps facts in a single append-only table. Create only ever
// INSERTs and Query only ever SELECTs; rows past their expires_at are
// invisible and left for sweeping out of band.
type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(
	ctx context.Context,
	attributes map[string]string,
	payload []byte,
	ttlSeconds int64,
) (Receipt, error) {
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	attrs, err := json.Marshal(attributes)
	if err != nil {
		return Receipt{}, err
	}

	key := uuid.NewString()
	txRef := uuid.NewString()
	expiresAt := time.Now().UTC().Add(time.Duration(ttlSeconds) * time.Second)

	query := `
		INSERT INTO facts (key, attributes, payload, tx_ref, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, key, attrs, payload, txRef, expiresAt); err != nil {
		// Once the statement is in flight a timeout no longer tells us
		// whether the row landed. Surface the txRef so callers can poll.
		if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return Receipt{}, &UnconfirmedWriteError{TxRef: txRef, Err: err}
		}
		return Receipt{}, err
	}

	return Receipt{Key: key, TxRef: txRef}, nil
}

func (s *PostgresStore) Query(
	ctx context.Context,
	filters map[string]string,
) ([]Record, error) {
	filter, err := json.Marshal(filters)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT key, attributes, payload, tx_ref, created_at
		FROM facts
		WHERE attributes @> $1::jsonb AND expires_at > NOW()
		ORDER BY created_at ASC, key ASC
	`
	rows, err := s.db.Query(ctx, query, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var attrs []byte
		if err := rows.Scan(
			&record.Key,
			&attrs,
			&record.Payload,
			&record.TxRef,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(attrs, &record.Attributes); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
