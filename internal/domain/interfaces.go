package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ranker упорядочивает посты ленты для конкретного зрителя.
// Реализация обязана быть чистой функцией своих аргументов.
type Ranker interface {
	Rank(posts []VideoPost, following map[uuid.UUID]struct{}, now time.Time) []RankedPost
}

// PostRepo читает и создаёт посты ленты.
type PostRepo interface {
	ListRecent(limit int) ([]VideoPost, error)
	GetPost(id uuid.UUID) (VideoPost, error)
	CreatePost(post VideoPost) (VideoPost, error)
}

// MessageRepo управляет сообщениями текущего пользователя.
type MessageRepo interface {
	// ListForUser возвращает все сообщения, где пользователь отправитель
	// или получатель, от новых к старым.
	ListForUser(user uuid.UUID) ([]Message, error)
	CreateMessage(msg Message) (Message, error)
	// MarkSeenFrom помечает прочитанными непрочитанные входящие от peer
	// и возвращает идентификаторы затронутых сообщений.
	MarkSeenFrom(peer, viewer uuid.UUID) ([]uuid.UUID, error)
}

// SocialRepo управляет графом подписок. Таблица follows авторитетна.
type SocialRepo interface {
	Follow(follower, followee uuid.UUID) error
	Unfollow(follower, followee uuid.UUID) error
	Following(user uuid.UUID) ([]uuid.UUID, error)
	IsFollowing(follower, followee uuid.UUID) (bool, error)
}

// EngagementRepo пишет события вовлечённости. Денормализованные счётчики
// постов поддерживают триггеры платформы, клиент их не обновляет.
type EngagementRepo interface {
	AddView(post, viewer uuid.UUID) error
	AddLike(post, viewer uuid.UUID) error
	RemoveLike(post, viewer uuid.UUID) error
}

// ProfileRepo управляет профилями.
type ProfileRepo interface {
	GetProfile(id uuid.UUID) (Profile, error)
	UpdateProfile(profile Profile) (Profile, error)
}

// SettingsRepo хранит настройки клиента.
type SettingsRepo interface {
	GetSettings(user uuid.UUID) (UserSettings, error)
	UpsertSettings(settings UserSettings) (UserSettings, error)
}

// MediaStore — объектное хранилище платформы.
type MediaStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	// ResolveURL возвращает подписанную ссылку воспроизведения.
	ResolveURL(ctx context.Context, key string) (string, error)
}

// AuthClient — клиент токенов платформы.
type AuthClient interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
}

// SessionStore сохраняет сессию между запусками клиента.
type SessionStore interface {
	// Load возвращает ErrNoSession, если сессии ещё нет.
	Load() (Session, error)
	Save(session Session) error
	Clear() error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
