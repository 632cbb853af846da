package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestUsers_ReturnsPostgresRepository(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()
	repo := m.Users(db)
	require.NotNil(t, repo)
	_, ok := repo.(*users.PostgresRepository)
	assert.True(t, ok)
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	t.Cleanup(func() { gooseUpContext = orig })

	m := &PostgresRepositoryManager{}
	require.NoError(t, m.RunMigrations(context.Background(), db))
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	t.Cleanup(func() { gooseUpContext = orig })

	m := &PostgresRepositoryManager{}
	err := m.RunMigrations(context.Background(), db)
	require.Error(t, err)
	assert.EqualError(t, err, "migrate: boom")
}

func TestOpenDB(t *testing.T) {
	t.Run("ping ok", func(t *testing.T) {
		db, mock := newDB(t)
		mock.ExpectPing()

		orig := sqlOpen
		sqlOpen = func(driver, dsn string) (*sql.DB, error) {
			assert.Equal(t, DriverName, driver)
			return db, nil
		}
		t.Cleanup(func() { sqlOpen = orig })

		got, err := OpenDB(context.Background(), "postgres://x")
		require.NoError(t, err)
		assert.Same(t, db, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping fails", func(t *testing.T) {
		db, mock := newDB(t)
		mock.ExpectPing().WillReturnError(errors.New("refused"))
		mock.ExpectClose()

		orig := sqlOpen
		sqlOpen = func(driver, dsn string) (*sql.DB, error) { return db, nil }
		t.Cleanup(func() { sqlOpen = orig })

		_, err := OpenDB(context.Background(), "postgres://x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db ping: refused")
	})

	t.Run("open fails", func(t *testing.T) {
		orig := sqlOpen
		sqlOpen = func(driver, dsn string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
		t.Cleanup(func() { sqlOpen = orig })

		_, err := OpenDB(context.Background(), "::")
		assert.EqualError(t, err, "db open: bad dsn")
	})
}
