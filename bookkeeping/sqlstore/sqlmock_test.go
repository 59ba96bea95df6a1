package sqlstore

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, nil), mock
}

func TestStoreWrapsDriverErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("file type lookup", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT file_type_id FROM file_types")).
			WithArgs("DST", "1").
			WillReturnError(boom)

		_, err := s.ResolveFileTypeID(ctx, "DST", "1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, bookkeeping.IsNotFound(err))
		assert.Contains(t, err.Error(), "failed to resolve file type DST/1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("job insert rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs (config_name, config_version)")).
			WithArgs("LHCb", "Collision24").
			WillReturnError(boom)
		mock.ExpectRollback()

		_, err := s.InsertJob(ctx, bookkeeping.Row{"ConfigName": "LHCb", "ConfigVersion": "Collision24"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Contains(t, err.Error(), "failed to insert job")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("job insert with parameters", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO jobs (config_name, config_version, production)")).
			WithArgs("LHCb", "Collision24", int64(12)).
			WillReturnResult(sqlmock.NewResult(7, 1))
		mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO job_parameters")).
			ExpectExec().
			WithArgs(int64(7), "DiracJobId", "99").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		id, err := s.InsertJob(ctx, bookkeeping.Row{
			"ConfigName": "LHCb", "ConfigVersion": "Collision24", "Production": "12", "DiracJobId": "99",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replica flag update", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE files SET got_replica")).
			WithArgs("No", int64(3)).
			WillReturnError(boom)

		err := s.UpdateReplicaFlag(ctx, 3, bookkeeping.ReplicaNo)
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Contains(t, err.Error(), "update replica flag of file 3")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("production registration aborts on existence check", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM productions")).
			WithArgs(int64(-42)).
			WillReturnError(boom)
		mock.ExpectRollback()

		err := s.RegisterProduction(ctx, bookkeeping.ProductionRegistration{
			Production: -42,
			Steps:      []bookkeeping.ProductionStep{{StepID: 1, StepName: "Real Data"}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.False(t, errors.Is(err, bookkeeping.ErrAlreadyRegistered))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
