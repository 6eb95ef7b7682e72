package domain

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// ConversationID идентифицирует двусторонний диалог независимо от того,
// кто из участников его открыл. Пара хранится в каноническом порядке,
// поэтому обе стороны получают одно и то же имя канала сигналов.
type ConversationID struct {
	lo uuid.UUID
	hi uuid.UUID
}

// NewConversationID строит идентификатор диалога из пары участников.
func NewConversationID(a, b uuid.UUID) ConversationID {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return ConversationID{lo: a, hi: b}
}

// Users возвращает участников диалога в каноническом порядке.
func (c ConversationID) Users() (uuid.UUID, uuid.UUID) {
	return c.lo, c.hi
}

// Peer возвращает собеседника для указанного зрителя.
func (c ConversationID) Peer(viewer uuid.UUID) uuid.UUID {
	if c.lo == viewer {
		return c.hi
	}
	return c.lo
}

// Contains сообщает, участвует ли пользователь в диалоге.
func (c ConversationID) Contains(u uuid.UUID) bool {
	return c.lo == u || c.hi == u
}

// IsZero сообщает, что идентификатор не заполнен.
func (c ConversationID) IsZero() bool {
	return c.lo == uuid.Nil && c.hi == uuid.Nil
}

// SignalChannel возвращает имя широковещательного канала диалога.
func (c ConversationID) SignalChannel() string {
	return "conv:" + c.String()
}

func (c ConversationID) String() string {
	return c.lo.String() + ":" + c.hi.String()
}

// MarshalText сериализует идентификатор для JSON-полей сигналов.
func (c ConversationID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText разбирает пару "uuid:uuid" и приводит её к каноническому порядку.
func (c *ConversationID) UnmarshalText(text []byte) error {
	parts := bytes.SplitN(text, []byte(":"), 2)
	if len(parts) != 2 {
		return fmt.Errorf("conversation id %q: ожидается пара uuid:uuid", text)
	}
	a, err := uuid.ParseBytes(parts[0])
	if err != nil {
		return fmt.Errorf("conversation id: %w", err)
	}
	b, err := uuid.ParseBytes(parts[1])
	if err != nil {
		return fmt.Errorf("conversation id: %w", err)
	}
	*c = NewConversationID(a, b)
	return nil
}
