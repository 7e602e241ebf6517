package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/gatehouse/pkg/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single URL", input: "postgres://localhost:5432/db", expected: []string{"postgres://localhost:5432/db"}},
		{
			name:     "whitespace and empty entries",
			input:    " postgres://host1:5432/db ,, postgres://host2:5432/db ,",
			expected: []string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{name: "only commas and whitespace", input: " , , ", expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestDB_ReplicaRoundRobin(t *testing.T) {
	primary, _, err := sqlmock.New()
	require.NoError(t, err)
	defer primary.Close()
	assert.Same(t, primary, NewDB(primary).Replica(), "falls back to primary")

	r1, _, err := sqlmock.New()
	require.NoError(t, err)
	defer r1.Close()
	r2, _, err := sqlmock.New()
	require.NoError(t, err)
	defer r2.Close()

	db := NewDB(primary, r1, r2)
	seen := map[interface{}]int{}
	for i := 0; i < 4; i++ {
		seen[db.Replica()]++
	}
	assert.Equal(t, 2, seen[r1])
	assert.Equal(t, 2, seen[r2])
	assert.Same(t, primary, db.Primary())
}

func TestDB_HealthCheck(t *testing.T) {
	primary, pmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	replica, rmock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := NewDB(primary, replica)

	pmock.ExpectPing()
	rmock.ExpectPing()
	require.NoError(t, db.HealthCheck(context.Background()))

	pmock.ExpectPing()
	rmock.ExpectPing().WillReturnError(errors.New("down"))
	err = db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all replicas unhealthy")

	pmock.ExpectPing().WillReturnError(errors.New("down"))
	err = db.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary unhealthy")

	rmock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Equal(t, 1, db.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, primary, db.Replica())

	pmock.ExpectClose()
	db.Close()
	require.NoError(t, pmock.ExpectationsWereMet())
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(NewDB(db)), mock
}

func TestStore_QueryErrorsAreWrapped(t *testing.T) {
	errDB := errors.New("connection reset")
	ctx := context.Background()

	t.Run("feature", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT enabled FROM team_features`).WithArgs(int64(1), "pbac").WillReturnError(errDB)
		_, err := store.TenantHasFeature(ctx, 1, "pbac")
		assert.ErrorIs(t, err, errDB)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("membership", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT role, custom_role_id FROM memberships`).WithArgs(int64(1), int64(2)).WillReturnError(errDB)
		_, err := store.HasPermissions(ctx, 1, 2, []authz.Permission{"role.read"}, nil)
		assert.ErrorIs(t, err, errDB)
	})

	t.Run("role permissions", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT role, custom_role_id FROM memberships`).
			WillReturnRows(sqlmock.NewRows([]string{"role", "custom_role_id"}).AddRow("MEMBER", "viewer"))
		mock.ExpectQuery(`SELECT resource, action FROM role_permissions`).WithArgs("viewer").WillReturnError(errDB)
		_, err := store.HasPermissions(ctx, 1, 2, []authz.Permission{"role.read"}, authz.DefaultFallbackRoles)
		assert.ErrorIs(t, err, errDB)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("client", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT id, name, permissions FROM oauth_clients`).WillReturnError(errDB)
		_, err := store.ClientByID(ctx, "x")
		assert.ErrorIs(t, err, errDB)
		assert.NotErrorIs(t, err, authz.ErrClientNotFound)
	})

	t.Run("lock", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET locked = TRUE WHERE id = \$1`).WithArgs(int64(5)).WillReturnError(errDB)
		assert.ErrorIs(t, store.LockByUserID(ctx, 5), errDB)
	})

	t.Run("lock succeeds", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE users SET locked = TRUE WHERE id = \$1`).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, store.LockByUserID(ctx, 5))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
