package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile описывает профиль пользователя платформы.
type Profile struct {
	ID        uuid.UUID
	Username  string
	FullName  string
	Bio       string
	AvatarKey string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VideoPost представляет короткое видео в ленте. Счётчики денормализованы
// и обновляются триггерами платформы; клиент читает их и никогда не пишет.
type VideoPost struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	MediaKey  string
	Caption   string
	Views     int64
	Likes     int64
	Comments  int64
	CreatedAt time.Time
}

// RankedPost хранит оценённый пост после ранжирования. Оценка живёт
// до показа ленты и нигде не сохраняется.
type RankedPost struct {
	Post     VideoPost
	Score    float64
	MediaURL string
}

// Message представляет сообщение между двумя пользователями.
type Message struct {
	ID         uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Content    string
	MediaKey   string
	Seen       bool
	CreatedAt  time.Time
}

// ReceivedBy сообщает, адресовано ли сообщение указанному пользователю.
func (m Message) ReceivedBy(viewer uuid.UUID) bool {
	return m.ReceiverID == viewer
}

// ConversationSummary — сводка диалога с одним собеседником. Не хранится:
// строится свёрткой истории сообщений и обновляется живыми событиями.
type ConversationSummary struct {
	Peer        uuid.UUID
	LastMessage Message
	Unread      int
}

// PresenceState описывает эфемерный статус собеседника.
type PresenceState struct {
	Online   bool
	LastSeen time.Time
}

// UserSettings хранит настройки клиента. Строка появляется при первом
// сохранении, до этого чтение возвращает ErrNotFound.
type UserSettings struct {
	UserID         uuid.UUID
	PrivateAccount bool
	Notifications  bool
	Autoplay       bool
	UpdatedAt      time.Time
}

// Session описывает активную сессию платформы.
type Session struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresWithin сообщает, истекает ли токен сессии в ближайший интервал.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.ExpiresAt.After(now.Add(d))
}
