package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// maxSerializationRetries bounds how often WithTx re-runs fn after a serialization failure.
const maxSerializationRetries = 3

// TxFunc is the body of a transaction. It must be safe to run more than once.
type TxFunc func(tx *sqlx.Tx) error

// WithTx runs fn inside a SERIALIZABLE transaction and commits when fn returns nil.
// Any error from fn rolls the whole transaction back. Serialization failures (40001)
// are retried a bounded number of times; other errors are returned as-is.
func WithTx(ctx context.Context, conn *sqlx.DB, fn TxFunc) error {
	var err error
	for attempt := 0; attempt <= maxSerializationRetries; attempt++ {
		err = runTx(ctx, conn, fn)
		if err == nil || !IsSerializationFailure(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, conn *sqlx.DB, fn TxFunc) (err error) {
	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
