package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

func TestLoadWithoutFileReturnsNoSession(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if _, err := store.Load(); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("отсутствие файла должно давать ErrNoSession, получили %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	store := NewFileStore(path)

	sess := domain.Session{
		UserID:       uuid.New(),
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Save(sess); err != nil {
		t.Fatalf("сохранение должно проходить: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("файл сессии не создан: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("файл с токенами должен быть 0600, получили %o", perm)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("чтение должно проходить: %v", err)
	}
	if loaded.UserID != sess.UserID || loaded.AccessToken != sess.AccessToken || loaded.RefreshToken != sess.RefreshToken {
		t.Fatalf("сессия исказилась: %+v против %+v", loaded, sess)
	}
	if !loaded.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("срок жизни исказился: %s против %s", loaded.ExpiresAt, sess.ExpiresAt)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)

	if err := store.Save(domain.Session{UserID: uuid.New(), AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("сохранение должно проходить: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("удаление должно проходить: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("повторное удаление не должно падать: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("после удаления должно быть ErrNoSession, получили %v", err)
	}
}

func TestLoadRejectsCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{оборванный"), 0o600); err != nil {
		t.Fatalf("подготовка файла: %v", err)
	}
	store := NewFileStore(path)
	if _, err := store.Load(); err == nil || errors.Is(err, domain.ErrNoSession) {
		t.Fatalf("порченый файл должен давать ошибку разбора, получили %v", err)
	}
}
