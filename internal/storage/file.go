package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xaenox/diplomat-bot/internal/models"
	"go.uber.org/zap"
)

// FileStorage keeps every user in one JSON document. Each save rewrites the
// whole document, so its cost grows with the total number of users and
// history entries.
//
// Writes go to a temporary file that is renamed over the document. Access is
// serialised within the process; separate processes sharing the same file
// race with last-writer-wins.
type FileStorage struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileStorage opens the document at path, creating an empty one if needed.
func NewFileStorage(path string, logger *zap.Logger) (*FileStorage, error) {
	s := &FileStorage{path: path, logger: logger}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(&Document{Users: map[string]json.RawMessage{}}); err != nil {
			return nil, fmt.Errorf("initialise storage: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat storage: %w", err)
	}

	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// read loads the document. A missing file is an empty store; a file that is
// not valid JSON is an error so the next save cannot silently wipe it.
func (s *FileStorage) read() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Document{Users: map[string]json.RawMessage{}}, nil
		}
		return nil, fmt.Errorf("read storage: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse storage %s: %w", s.path, err)
	}
	if doc.Users == nil {
		doc.Users = map[string]json.RawMessage{}
	}
	return &doc, nil
}

func (s *FileStorage) write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace storage: %w", err)
	}
	return nil
}

func (s *FileStorage) GetUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	raw, exists := doc.Users[username]
	if !exists {
		return nil, nil
	}
	return DecodeUser(username, raw, s.logger)
}

func (s *FileStorage) SaveUser(ctx context.Context, user *models.User) error {
	raw, err := EncodeUser(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Users[user.Username] = raw
	return s.write(doc)
}

func (s *FileStorage) RenameUser(ctx context.Context, oldName, newName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return false, err
	}
	if _, taken := doc.Users[newName]; taken {
		return false, nil
	}
	raw, exists := doc.Users[oldName]
	if !exists {
		return false, nil
	}

	doc.Users[newName] = raw
	delete(doc.Users, oldName)
	if err := s.write(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStorage) DeleteUser(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if _, exists := doc.Users[username]; !exists {
		return nil
	}
	delete(doc.Users, username)
	return s.write(doc)
}

func (s *FileStorage) Close() error {
	return nil
}
