// Package mysql implements the envelope key Metastore on MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/crypto/repository"
	"github.com/allisson/asherah/internal/database"
)

// Aurora replica read consistency levels accepted by NewMySQLMetastore.
const (
	ReplicaReadConsistencyEventual = "eventual"
	ReplicaReadConsistencyGlobal   = "global"
	ReplicaReadConsistencySession  = "session"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLMetastore stores envelope key records in the encryption_key table.
// Uses VARBINARY for key IDs and TEXT for the JSON key record.
type MySQLMetastore struct {
	db          *sql.DB
	txManager   database.TxManager
	consistency string
}

// NewMySQLMetastore creates a MySQL metastore.
//
// When consistency is set, reads run in a transaction that first sets
// aurora_replica_read_consistency so Aurora read replicas see recent writes.
func NewMySQLMetastore(
	db *sql.DB,
	txManager database.TxManager,
	consistency string,
) (*MySQLMetastore, error) {
	switch consistency {
	case "", ReplicaReadConsistencyEventual, ReplicaReadConsistencyGlobal, ReplicaReadConsistencySession:
	default:
		return nil, fmt.Errorf("invalid replica read consistency %q", consistency)
	}
	return &MySQLMetastore{db: db, txManager: txManager, consistency: consistency}, nil
}

// Load retrieves the record stored for (id, created), or nil.
func (m *MySQLMetastore) Load(
	ctx context.Context,
	id string,
	created int64,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	query := `SELECT key_record FROM encryption_key WHERE id = ? AND created = ?`
	return m.queryRecord(ctx, id, query, id, time.Unix(created, 0).UTC())
}

// LoadLatest retrieves the newest record for id, or nil.
func (m *MySQLMetastore) LoadLatest(ctx context.Context, id string) (*cryptoDomain.EnvelopeKeyRecord, error) {
	query := `SELECT key_record FROM encryption_key WHERE id = ? ORDER BY created DESC LIMIT 1`
	return m.queryRecord(ctx, id, query, id)
}

// Store inserts record under (id, created). A duplicate primary key returns false.
func (m *MySQLMetastore) Store(
	ctx context.Context,
	id string,
	created int64,
	record *cryptoDomain.EnvelopeKeyRecord,
) (bool, error) {
	data, err := repository.EncodeRecord(created, record)
	if err != nil {
		return false, fmt.Errorf("%w: %v", cryptoDomain.ErrInvalidKeyRecord, err)
	}

	query := `INSERT INTO encryption_key (id, created, key_record) VALUES (?, ?, ?)`

	err = m.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, m.db)
		_, err := querier.ExecContext(ctx, query, id, time.Unix(created, 0).UTC(), string(data))
		return err
	})
	if err != nil {
		if isDuplicateEntry(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: failed to store key %s: %w", cryptoDomain.ErrMetastoreUnavailable, id, err)
	}
	return true, nil
}

func (m *MySQLMetastore) queryRecord(
	ctx context.Context,
	id string,
	query string,
	args ...any,
) (*cryptoDomain.EnvelopeKeyRecord, error) {
	var data string

	read := func(ctx context.Context) error {
		querier := database.GetTx(ctx, m.db)
		if m.consistency != "" {
			stmt := fmt.Sprintf("SET aurora_replica_read_consistency = '%s'", m.consistency)
			if _, err := querier.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return querier.QueryRowContext(ctx, query, args...).Scan(&data)
	}

	var err error
	if m.consistency != "" {
		err = m.txManager.WithTx(ctx, read)
	} else {
		err = read(ctx)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to load key %s: %w", cryptoDomain.ErrMetastoreUnavailable, id, err)
	}

	return repository.DecodeRecord(id, []byte(data))
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
