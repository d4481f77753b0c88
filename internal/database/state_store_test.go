package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockBlobStore(t *testing.T) (*BlobStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return NewBlobStore(db), mock
}

func TestBlobStoreLoadMissing(t *testing.T) {
	store, mock := newMockBlobStore(t)

	mock.ExpectQuery(`SELECT \* FROM "state_blobs" WHERE key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "schema_version", "payload", "updated_at"}))

	var out sampleState
	found, err := store.Load(context.Background(), "orders", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobStoreLoadDecodesEnvelope(t *testing.T) {
	store, mock := newMockBlobStore(t)

	rows := sqlmock.NewRows([]string{"key", "schema_version", "payload"}).
		AddRow("orders", 1, []byte(`{"schema_version":1,"data":{"owner":"fam-2","orders":{"o1":3}}}`))
	mock.ExpectQuery(`SELECT \* FROM "state_blobs" WHERE key = \$1`).WillReturnRows(rows)

	var out sampleState
	found, err := store.Load(context.Background(), "orders", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fam-2", out.Owner)
	assert.Equal(t, 3, out.Orders["o1"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlobStoreSaveUpserts(t *testing.T) {
	store, mock := newMockBlobStore(t)

	mock.ExpectExec(`INSERT INTO "state_blobs" .* ON CONFLICT \("key"\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Save(context.Background(), "orders", sampleState{Owner: "fam-3"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
