package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeOp описывает операцию, породившую событие изменения строки.
type ChangeOp string

const (
	// ChangeInsert — строка вставлена.
	ChangeInsert ChangeOp = "INSERT"
	// ChangeUpdate — строка обновлена.
	ChangeUpdate ChangeOp = "UPDATE"
	// ChangeDelete — строка удалена.
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent — событие изменения строки, доставленное платформой.
// Row содержит строку в том виде, в котором её сериализовал триггер.
type ChangeEvent struct {
	Op    ChangeOp        `json:"op"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// MessageEvent — декодированное событие изменения сообщения зрителя.
type MessageEvent struct {
	Op      ChangeOp
	Message Message
}

// SignalKind — разновидность сигнала широковещательного канала.
type SignalKind string

const (
	// SignalTyping — собеседник набирает текст.
	SignalTyping SignalKind = "typing"
	// SignalSeen — собеседник прочитал диалог.
	SignalSeen SignalKind = "seen"
	// SignalCallOffer — входящее предложение звонка.
	SignalCallOffer SignalKind = "call_offer"
	// SignalCallAnswer — ответ на предложение звонка.
	SignalCallAnswer SignalKind = "call_answer"
	// SignalCallEnd — завершение звонка любой стороной.
	SignalCallEnd SignalKind = "call_end"
)

// Signal — сообщение ад-хок канала: набор текста, прочтение, сигналинг звонков.
// Не связано с изменениями таблиц и не даёт гарантий доставки.
type Signal struct {
	Kind         SignalKind      `json:"kind"`
	Conversation ConversationID  `json:"conversation"`
	From         uuid.UUID       `json:"from"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	SentAt       time.Time       `json:"sent_at"`
}

// ChangeFeed доставляет события изменения строк для текущего пользователя.
type ChangeFeed interface {
	// MessageEvents подписывает на события сообщений зрителя. Канал
	// закрывается при Close или отмене контекста.
	MessageEvents(ctx context.Context, viewer uuid.UUID) (<-chan MessageEvent, error)
	Close() error
}

// SignalBus — широковещательный примитив платформы: публикация и подписка
// по имени канала, без связи с изменениями таблиц.
type SignalBus interface {
	// Signals возвращает единый поток сигналов всех подключённых диалогов.
	Signals() <-chan Signal
	Join(ctx context.Context, conv ConversationID) error
	Leave(conv ConversationID) error
	Send(ctx context.Context, sig Signal) error
	Close() error
}

// Presence отслеживает членство в канале присутствия и метку последнего визита.
// Online выводится из членства; LastSeen хранится отдельно и обновляется
// heartbeat-ом самого клиента.
type Presence interface {
	Heartbeat(ctx context.Context, user uuid.UUID) error
	Online(ctx context.Context, user uuid.UUID) (bool, error)
	LastSeen(ctx context.Context, user uuid.UUID) (time.Time, error)
}
