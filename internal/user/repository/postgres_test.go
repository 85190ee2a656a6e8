package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/backend/internal/user/domain"
)

func setupMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return NewPostgresRepository(sqlx.NewDb(raw, "pgx")), mock
}

var userCols = []string{"id", "tenant_id", "email", "password_hash", "full_name", "role", "created_at", "updated_at"}

func TestGetByEmail_NormalisesAndScopes(t *testing.T) {
	repo, mock := setupMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE tenant_id = \$1 AND email = \$2`).
		WithArgs("t1", "admin@primetech.local").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "t1", "admin@primetech.local", "$2a$hash", "Admin", "ADMIN", now, now))

	u, err := repo.GetByEmail(context.Background(), "t1", "  Admin@PrimeTech.local ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.True(t, u.Role.IsStaff())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID_Missing(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", "nope").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByID(context.Background(), "t1", "nope")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCreate_RejectsInvalid(t *testing.T) {
	repo, _ := setupMockRepo(t)
	err := repo.Create(context.Background(), &domain.User{ID: "u1", TenantID: "t1"})
	assert.Error(t, err)
}

func TestCreate_Inserts(t *testing.T) {
	repo, mock := setupMockRepo(t)
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
	u := &domain.User{ID: "u1", TenantID: "t1", Email: "New@Example.com", PasswordHash: "h"}
	require.NoError(t, repo.Create(context.Background(), u))
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}
