package storage

import (
	"context"

	"github.com/xaenox/diplomat-bot/internal/models"
)

// Storage persists complete user records keyed by username.
//
// GetUser returns nil, nil for an unknown username. SaveUser replaces the
// whole stored record. RenameUser returns false when the new name is taken or
// the old one does not exist. DeleteUser of an unknown username is a no-op.
type Storage interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	RenameUser(ctx context.Context, oldName, newName string) (bool, error)
	DeleteUser(ctx context.Context, username string) error
	Close() error
}
