package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresRepository(sqlx.NewDb(raw, "pgx")), mock
}

func TestPostgresRepository_GetByDomain(t *testing.T) {
	repo, mock := setupMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM tenant_domains d JOIN tenants t`).
		WithArgs("shop.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "status", "created_at"}).
			AddRow("t1", "primetech", "Prime Tech Services", "ACTIVE", now))

	got, err := repo.GetByDomain(context.Background(), "shop.example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "primetech", got.Key)
	assert.True(t, got.IsActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByDomainMissing(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM tenant_domains`).
		WithArgs("nobody.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "status", "created_at"}))

	got, err := repo.GetByDomain(context.Background(), "nobody.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresRepository_GetByKey(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM tenants t WHERE t.key = \$1`).
		WithArgs("primetech").
		WillReturnRows(sqlmock.NewRows([]string{"id", "key", "name", "status", "created_at"}).
			AddRow("t1", "primetech", "Prime Tech Services", "ACTIVE", time.Now()))

	got, err := repo.GetByKey(context.Background(), "primetech")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Prime Tech Services", got.Name)
}
