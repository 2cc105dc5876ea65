package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aether-vault/internal/domain"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "local.db"))
	require.NoError(t, err)
	defer s.Close()

	flags, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, flags.Onboarded)
	assert.True(t, flags.Guardian, "guardian defaults to enabled")
	assert.Empty(t, flags.Strategy)

	require.NoError(t, s.SaveSelections(ctx, domain.ProfileAggressive, false))
	flags, err = s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, flags.Onboarded)
	assert.Equal(t, domain.ProfileAggressive, flags.Strategy)
	assert.False(t, flags.Guardian)

	require.NoError(t, s.SetGuardian(ctx, true))
	enabled, err := s.GuardianEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	raw, ok, err := s.Get(ctx, KeyGuardian)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", raw)

	require.NoError(t, s.Clear(ctx))
	flags, err = s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, flags.Onboarded)
}

func TestSaveSelectionsRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS flags")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s, err := NewWithDB(context.Background(), db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO flags")).
		WithArgs(KeyOnboarded, "1").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = s.SaveSelections(context.Background(), domain.ProfileBalanced, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyOnboarded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only file system"))
	_, err = NewWithDB(context.Background(), db)
	assert.Error(t, err)
}
