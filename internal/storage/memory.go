package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

// MemoryStorage keeps encoded records in a map. Records go through the same
// codec as the durable backends, so callers never share state with the store.
type MemoryStorage struct {
	mu     sync.RWMutex
	users  map[string]json.RawMessage
	logger *zap.Logger
}

func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	return &MemoryStorage{
		users:  make(map[string]json.RawMessage),
		logger: logger,
	}
}

func (s *MemoryStorage) GetUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if raw, exists := s.users[username]; exists {
		return DecodeUser(username, raw, s.logger)
	}
	return nil, nil
}

func (s *MemoryStorage) SaveUser(ctx context.Context, user *models.User) error {
	raw, err := EncodeUser(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.Username] = raw
	return nil
}

func (s *MemoryStorage) RenameUser(ctx context.Context, oldName, newName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.users[newName]; taken {
		return false, nil
	}
	raw, exists := s.users[oldName]
	if !exists {
		return false, nil
	}

	s.users[newName] = raw
	delete(s.users, oldName)
	return true, nil
}

func (s *MemoryStorage) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, username)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
