package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

// FileStore хранит сессию платформы в JSON-файле между запусками клиента.
type FileStore struct {
	path string
}

var _ domain.SessionStore = (*FileStore)(nil)

// NewFileStore создаёт хранилище по указанному пути.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileSession struct {
	UserID       uuid.UUID `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Load читает сохранённую сессию. Отсутствие файла — ErrNoSession.
func (s *FileStore) Load() (domain.Session, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Session{}, domain.ErrNoSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("чтение файла сессии: %w", err)
	}
	var fs fileSession
	if err := json.Unmarshal(raw, &fs); err != nil {
		return domain.Session{}, fmt.Errorf("разбор файла сессии: %w", err)
	}
	if fs.AccessToken == "" || fs.RefreshToken == "" {
		return domain.Session{}, domain.ErrNoSession
	}
	return domain.Session{
		UserID:       fs.UserID,
		AccessToken:  fs.AccessToken,
		RefreshToken: fs.RefreshToken,
		ExpiresAt:    fs.ExpiresAt,
	}, nil
}

// Save записывает сессию. Файл содержит токены, права только владельцу.
func (s *FileStore) Save(sess domain.Session) error {
	raw, err := json.MarshalIndent(fileSession{
		UserID:       sess.UserID,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("кодирование сессии: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("создание каталога сессии: %w", err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("запись файла сессии: %w", err)
	}
	return nil
}

// Clear удаляет сохранённую сессию. Отсутствие файла не считается ошибкой.
func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("удаление файла сессии: %w", err)
	}
	return nil
}
