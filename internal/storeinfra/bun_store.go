package storeinfra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-gamestate/record"
)

// recordRow is the persisted form of a record.
type recordRow struct {
	bun.BaseModel `bun:"table:records"`

	Key       string    `bun:"record_key,pk"`
	Payload   []byte    `bun:"payload,notnull"`
	Version   int64     `bun:"version,notnull"`
	Source    string    `bun:"source_of_truth,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (r *recordRow) toRecord() record.Record {
	return record.Record{
		Key:       r.Key,
		Payload:   r.Payload,
		Version:   r.Version,
		Source:    record.SourceOfTruth(r.Source),
		UpdatedAt: r.UpdatedAt,
	}
}

// BunStore is the relational system-of-record.
type BunStore struct {
	db        *bun.DB
	txTimeout time.Duration
	now       func() time.Time
}

// NewBunStore wraps db. Every operation runs under txTimeout when it is positive.
// The store owns db and closes it in Close.
func NewBunStore(db *bun.DB, txTimeout time.Duration) *BunStore {
	return &BunStore{db: db, txTimeout: txTimeout, now: time.Now}
}

// Migrate creates the records table when it does not exist.
func (s *BunStore) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*recordRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (s *BunStore) DB() *bun.DB {
	return s.db
}

// Close releases the connection pool.
func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout > 0 {
		return context.WithTimeout(ctx, s.txTimeout)
	}
	return context.WithCancel(ctx)
}

// ReadCurrent returns the committed record for key.
func (s *BunStore) ReadCurrent(ctx context.Context, key string) (record.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := new(recordRow)
	err := s.db.NewSelect().
		Model(row).
		Where("record_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.NewError(record.CodeNotFound, key, "no record in store")
	}
	if err != nil {
		return record.Record{}, record.Wrap(record.CodeStoreUnavailable, key, "read failed", err)
	}
	return row.toRecord(), nil
}

// WriteIfVersionMatches applies intent in a single transaction. The
// conditional insert/update guards against a concurrent writer that passed the
// same version check, so the check holds even without row locks.
func (s *BunStore) WriteIfVersionMatches(ctx context.Context, intent record.WriteIntent) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload := intent.NewPayload
	if payload == nil {
		payload = []byte{}
	}

	var newVersion int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := new(recordRow)
		err := tx.NewSelect().
			Model(current).
			Where("record_key = ?", intent.Key).
			Limit(1).
			Scan(ctx)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if !intent.IsCreate() {
				return record.NewError(record.CodeNotFound, intent.Key,
					fmt.Sprintf("expected version %d but no record exists", intent.ExpectedVersion))
			}
			row := &recordRow{
				Key:       intent.Key,
				Payload:   payload,
				Version:   1,
				Source:    string(intent.Source),
				UpdatedAt: s.now().UTC(),
			}
			res, err := tx.NewInsert().
				Model(row).
				On("CONFLICT (record_key) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return record.Wrap(record.CodeStoreUnavailable, intent.Key, "insert failed", err)
			}
			if err := checkAffected(res, intent.Key, "record was created concurrently"); err != nil {
				return err
			}
			newVersion = 1
			return nil

		case err != nil:
			return record.Wrap(record.CodeStoreUnavailable, intent.Key, "read for update failed", err)
		}

		if current.Version != intent.ExpectedVersion {
			return record.NewError(record.CodeVersionConflict, intent.Key,
				fmt.Sprintf("expected version %d, current is %d", intent.ExpectedVersion, current.Version))
		}

		next := current.Version + 1
		res, err := tx.NewUpdate().
			Model((*recordRow)(nil)).
			Set("payload = ?", payload).
			Set("version = ?", next).
			Set("source_of_truth = ?", string(intent.Source)).
			Set("updated_at = ?", s.now().UTC()).
			Where("record_key = ?", intent.Key).
			Where("version = ?", current.Version).
			Exec(ctx)
		if err != nil {
			return record.Wrap(record.CodeStoreUnavailable, intent.Key, "update failed", err)
		}
		if err := checkAffected(res, intent.Key, "record changed concurrently"); err != nil {
			return err
		}
		newVersion = next
		return nil
	})
	if err != nil {
		if record.CodeOf(err) != "" {
			return 0, err
		}
		return 0, record.Wrap(record.CodeStoreUnavailable, intent.Key, "transaction failed", err)
	}
	return newVersion, nil
}

// checkAffected reports a conditional statement that matched no row as a
// version conflict. A driver that cannot report the count is unavailable.
func checkAffected(res sql.Result, key, conflict string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return record.Wrap(record.CodeStoreUnavailable, key, "rows affected", err)
	}
	if n == 0 {
		return record.NewError(record.CodeVersionConflict, key, conflict)
	}
	return nil
}
