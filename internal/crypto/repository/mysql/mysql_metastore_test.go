package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/asherah/internal/crypto/domain"
	"github.com/allisson/asherah/internal/database"
	"github.com/allisson/asherah/internal/testutil"
)

const (
	loadQuery       = `SELECT key_record FROM encryption_key WHERE id = ? AND created = ?`
	loadLatestQuery = `SELECT key_record FROM encryption_key WHERE id = ? ORDER BY created DESC LIMIT 1`
	storeQuery      = `INSERT INTO encryption_key (id, created, key_record) VALUES (?, ?, ?)`
)

func newMockMetastore(t *testing.T, consistency string) (*MySQLMetastore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	metastore, err := NewMySQLMetastore(db, database.NewTxManager(db), consistency)
	require.NoError(t, err)
	return metastore, mock
}

func newTestRecord(parentCreated int64) *cryptoDomain.EnvelopeKeyRecord {
	return &cryptoDomain.EnvelopeKeyRecord{
		EncryptedKey:  []byte("encrypted-intermediate-key"),
		ParentKeyMeta: &cryptoDomain.KeyMeta{ID: "_SK_svc_prod", Created: parentCreated},
	}
}

func TestNewMySQLMetastore(t *testing.T) {
	for _, consistency := range []string{"", "eventual", "global", "session"} {
		t.Run("valid_"+consistency, func(t *testing.T) {
			metastore, err := NewMySQLMetastore(nil, nil, consistency)
			require.NoError(t, err)
			assert.NotNil(t, metastore)
		})
	}

	t.Run("invalid consistency", func(t *testing.T) {
		_, err := NewMySQLMetastore(nil, nil, "strong")
		assert.Error(t, err)
	})
}

func TestMySQLMetastore_Load(t *testing.T) {
	ctx := context.Background()
	created := int64(1700000000)

	t.Run("Success", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC()).
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}).
				AddRow(`{"Key":"AQID","Created":1700000000,"ParentKeyMeta":{"KeyId":"_SK_svc_prod","Created":1699999999}}`))

		record, err := metastore.Load(ctx, "_IK_p_svc_prod", created)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "_IK_p_svc_prod", record.ID)
		assert.Equal(t, created, record.Created)
		assert.Equal(t, []byte{1, 2, 3}, record.EncryptedKey)
		assert.Equal(t, "_SK_svc_prod", record.ParentKeyMeta.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC()).
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}))

		record, err := metastore.Load(ctx, "_IK_p_svc_prod", created)
		require.NoError(t, err)
		assert.Nil(t, record)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Database", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC()).
			WillReturnError(errors.New("connection refused"))

		record, err := metastore.Load(ctx, "_IK_p_svc_prod", created)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Error_InvalidRecord", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC()).
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}).AddRow(`{broken`))

		record, err := metastore.Load(ctx, "_IK_p_svc_prod", created)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeyRecord)
	})

	t.Run("Success_WithReplicaReadConsistency", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, ReplicaReadConsistencyGlobal)

		mock.ExpectBegin()
		mock.ExpectExec(`SET aurora_replica_read_consistency = 'global'`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(loadQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC()).
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}).AddRow(`{"Key":"AQID","Created":1700000000}`))
		mock.ExpectCommit()

		record, err := metastore.Load(ctx, "_IK_p_svc_prod", created)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLMetastore_LoadLatest(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadLatestQuery).
			WithArgs("_SK_svc_prod").
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}).AddRow(`{"Key":"AQID","Created":1700000500}`))

		record, err := metastore.LoadLatest(ctx, "_SK_svc_prod")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, int64(1700000500), record.Created)
		assert.Nil(t, record.ParentKeyMeta)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectQuery(loadLatestQuery).
			WithArgs("_SK_svc_prod").
			WillReturnRows(sqlmock.NewRows([]string{"key_record"}))

		record, err := metastore.LoadLatest(ctx, "_SK_svc_prod")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("Error_ReplicaReadConsistency", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, ReplicaReadConsistencySession)

		mock.ExpectBegin()
		mock.ExpectExec(`SET aurora_replica_read_consistency = 'session'`).
			WillReturnError(errors.New("unknown system variable"))
		mock.ExpectRollback()

		record, err := metastore.LoadLatest(ctx, "_SK_svc_prod")
		assert.Nil(t, record)
		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLMetastore_Store(t *testing.T) {
	ctx := context.Background()
	created := int64(1700000000)

	t.Run("Success", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectBegin()
		mock.ExpectExec(storeQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := metastore.Store(ctx, "_IK_p_svc_prod", created, newTestRecord(created-10))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectBegin()
		mock.ExpectExec(storeQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC(), sqlmock.AnyArg()).
			WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"})
		mock.ExpectRollback()

		ok, err := metastore.Store(ctx, "_IK_p_svc_prod", created, newTestRecord(created-10))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Database", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectBegin()
		mock.ExpectExec(storeQuery).
			WithArgs("_IK_p_svc_prod", time.Unix(created, 0).UTC(), sqlmock.AnyArg()).
			WillReturnError(&mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
		mock.ExpectRollback()

		ok, err := metastore.Store(ctx, "_IK_p_svc_prod", created, newTestRecord(created-10))
		assert.False(t, ok)
		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
	})

	t.Run("Error_Begin", func(t *testing.T) {
		metastore, mock := newMockMetastore(t, "")

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		ok, err := metastore.Store(ctx, "_IK_p_svc_prod", created, newTestRecord(created-10))
		assert.False(t, ok)
		assert.ErrorIs(t, err, cryptoDomain.ErrMetastoreUnavailable)
	})
}

func TestMySQLMetastore_Integration(t *testing.T) {
	db := testutil.SetupMySQLDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupMySQLDB(t, db)

	metastore, err := NewMySQLMetastore(db, database.NewTxManager(db), "")
	require.NoError(t, err)
	ctx := context.Background()

	id := "_IK_partition-1_svc_prod"
	first := time.Now().Add(-time.Hour).Unix()
	second := first + 60

	record, err := metastore.LoadLatest(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, record)

	ok, err := metastore.Store(ctx, id, first, newTestRecord(first-1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = metastore.Store(ctx, id, second, newTestRecord(first-1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = metastore.Store(ctx, id, first, &cryptoDomain.EnvelopeKeyRecord{EncryptedKey: []byte("other")})
	require.NoError(t, err)
	assert.False(t, ok)

	record, err = metastore.Load(ctx, id, first)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, []byte("encrypted-intermediate-key"), record.EncryptedKey)
	assert.Equal(t, first, record.Created)

	record, err = metastore.LoadLatest(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, second, record.Created)
	assert.Equal(t, first-1, record.ParentKeyMeta.Created)

	record, err = metastore.Load(ctx, id, first+1)
	require.NoError(t, err)
	assert.Nil(t, record)
}
