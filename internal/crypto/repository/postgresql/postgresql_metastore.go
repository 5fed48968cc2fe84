// Package postgresql implements the envelope key Metastore on PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/repository"
	"github.com/allisson/asherah/internal/database"
)

// uniqueViolation is the SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// PostgreSQLMetastore stores envelope key records in the encryption_key table.
// Uses VARCHAR for key IDs and TEXT for the JSON key record.
type PostgreSQLMetastore struct {
	db        *sql.DB
	txManager database.TxManager
}

// NewPostgreSQLMetastore creates a PostgreSQL metastore.
func NewPostgreSQLMetastore(db *sql.DB, txManager database.TxManager) *PostgreSQLMetastore {
	return &PostgreSQLMetastore{db: db, txManager: txManager}
}

// Load retrieves the record stored for (id, created), or nil.
func (p *PostgreSQLMetastore) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	query := `SELECT key_record FROM encryption_key WHERE id = $1 AND created = $2`
	return p.queryRecord(ctx, id, query, id, time.Unix(created, 0).UTC())
}

// LoadLatest retrieves the newest record for id, or nil.
func (p *PostgreSQLMetastore) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	query := `SELECT key_record FROM encryption_key WHERE id = $1 ORDER BY created DESC LIMIT 1`
	return p.queryRecord(ctx, id, query, id)
}

// Store inserts record under (id, created). A unique violation returns false.
func (p *PostgreSQLMetastore) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	data, err := repository.EncodeRecord(created, record)
	if err != nil {
		return false, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidKeyRecord, err)
	}

	query := `INSERT INTO encryption_key (id, created, key_record) VALUES ($1, $2, $3)`

	err = p.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, p.db)
		_, err := querier.ExecContext(ctx, query, id, time.Unix(created, 0).UTC(), string(data))
		return err
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to store key %s: %w", cryptoDomain.ErrMetastoreUnavailable, id, err)
	}
	return true, nil
}

func (p *PostgreSQLMetastore) queryRecord(
	ctx context.Context,
	id string,
	query string,
	args ...any,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	querier := database.GetTx(ctx, p.db)

	var data string
	if err := querier.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to load key %s: %w", cryptoDomain.ErrMetastoreUnavailable, id, err)
	}

	return repository.DecodeRecord(id, []byte(data))
}
