package userstest

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/filegate/internal/dbx"
	"github.com/dmitrijs2005/filegate/internal/server/repositories/users"
)

// Manager is a repomanager.RepositoryManager that hands out the same
// MemoryRepository regardless of the DB handle.
type Manager struct {
	Repo *MemoryRepository
}

func NewManager() *Manager {
	return &Manager{Repo: NewMemoryRepository()}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository { return m.Repo }
