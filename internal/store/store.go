package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the append-only entity store every fact is written to. The store
// supports exactly two operations: create a record with a retention period,
// and query records by exact attribute match. There is no update, no delete,
// no compare-and-swap, and no transaction spanning records. Reads are only
// eventually consistent with writes.
type Store interface {
	Create(ctx context.Context, attributes map[string]string, payload []byte, ttlSeconds int64) (Receipt, error)
	Query(ctx context.Context, filters map[string]string) ([]Record, error)
}

// Receipt identifies a created record.
type Receipt struct {
	Key   string
	TxRef string
}

// Record is one stored fact as returned by Query, in creation order.
type Record struct {
	Key        string
	TxRef      string
	Attributes map[string]string
	Payload    []byte
	CreatedAt  time.Time
}

// UnconfirmedWriteError reports a write the store accepted for submission
// but whose commit could not be observed before the deadline. The record
// may or may not exist; callers should poll the read path instead of
// retrying the write.
type UnconfirmedWriteError struct {
	TxRef string
	Err   error
}

func (e *UnconfirmedWriteError) Error() string {
	return fmt.Sprintf("write submitted but unconfirmed (tx %s): %v", e.TxRef, e.Err)
}

func (e *UnconfirmedWriteError) Unwrap() error {
	return e.Err
}

// AsUnconfirmed unwraps err into an UnconfirmedWriteError if one is present.
func AsUnconfirmed(err error) (*UnconfirmedWriteError, bool) {
	var unconfirmed *UnconfirmedWriteError
	if errors.As(err, &unconfirmed) {
		return unconfirmed, true
	}
	return nil, false
}
