package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/licence/domain"
)

func setupMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresRepository(sqlx.NewDb(raw, "pgx")), mock
}

func TestGetLicenceByKey(t *testing.T) {
	repo, mock := setupMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM licences WHERE lic_key = $1")).WithArgs("LIC-AAAA-BBBB-CCCC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "release_id", "order_id", "lic_key", "status", "created_at"}).
			AddRow("l1", "t1", "u1", "rel-1", "o1", "LIC-AAAA-BBBB-CCCC", "ACTIVE", now))

	l, err := repo.GetLicenceByKey(context.Background(), "LIC-AAAA-BBBB-CCCC")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, domain.LicenceActive, l.Status)
	assert.True(t, l.IsValidFor("rel-1"))
	assert.False(t, l.IsValidFor("rel-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLicenceByKey_Missing(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM licences")).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	l, err := repo.GetLicenceByKey(context.Background(), "LIC-XXXX-XXXX-XXXX")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestListEntitlements_EmptyIsNotNil(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM entitlements")).WithArgs("t1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "release_id", "order_id", "granted_at"}))

	out, err := repo.ListEntitlements(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestHasEntitlement(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("t1", "u1", "rel-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.HasEntitlement(context.Background(), "t1", "u1", "rel-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
