package chat

import (
	"sort"

	"github.com/google/uuid"

	"clipstream-client/internal/domain"
)

// Composer сворачивает историю сообщений зрителя в сводки диалогов и
// обновляет их по живым событиям. Не потокобезопасен: им владеет цикл сессии.
//
// Порядок сводок двойной по смыслу: после холодной сборки он задаётся меткой
// последнего сообщения, а живое событие поднимает диалог в начало списка
// независимо от сравнения меток.
type Composer struct {
	viewer    uuid.UUID
	summaries []*domain.ConversationSummary
	index     map[uuid.UUID]*domain.ConversationSummary

	// seenLocal — оптимистичный кэш прочитанных сообщений. Авторитетен
	// сохранённый флаг строки; кэш закрывает окно до прихода события
	// обновления и сбрасывается каждой холодной сборкой.
	seenLocal map[uuid.UUID]struct{}
}

// NewComposer создаёт пустой набор сводок для зрителя.
func NewComposer(viewer uuid.UUID) *Composer {
	return &Composer{
		viewer:    viewer,
		index:     make(map[uuid.UUID]*domain.ConversationSummary),
		seenLocal: make(map[uuid.UUID]struct{}),
	}
}

// Rebuild строит сводки заново из полной истории, от новых к старым.
// Первое вхождение собеседника создаёт сводку с этим сообщением как последним;
// более новое сообщение замещает последнее, а каждое непрочитанное входящее
// увеличивает счётчик. Итоговый порядок: по метке последнего сообщения, новые
// выше. Пересборка идемпотентна и сбрасывает кэш прочитанного.
func (c *Composer) Rebuild(messages []domain.Message) {
	c.summaries = nil
	c.index = make(map[uuid.UUID]*domain.ConversationSummary)
	c.seenLocal = make(map[uuid.UUID]struct{})

	for _, msg := range messages {
		peer := c.peerOf(msg)
		if peer == uuid.Nil {
			continue
		}
		cur, ok := c.index[peer]
		if !ok {
			s := &domain.ConversationSummary{Peer: peer, LastMessage: msg}
			if c.countsAsUnread(msg) {
				s.Unread = 1
			}
			c.index[peer] = s
			c.summaries = append(c.summaries, s)
			continue
		}
		if msg.CreatedAt.After(cur.LastMessage.CreatedAt) {
			cur.LastMessage = msg
		}
		if c.countsAsUnread(msg) {
			cur.Unread++
		}
	}

	sort.SliceStable(c.summaries, func(i, j int) bool {
		return c.summaries[i].LastMessage.CreatedAt.After(c.summaries[j].LastMessage.CreatedAt)
	})
}

// ApplyMessage применяет живое событие нового сообщения. Для известного
// собеседника последнее сообщение замещается безусловно, счётчик растёт
// только для непрочитанного входящего вне кэша прочитанного, диалог
// поднимается в начало списка. Для неизвестного собеседника возвращает
// false: дешёвой вставки нет, нужна полная пересборка.
func (c *Composer) ApplyMessage(msg domain.Message) bool {
	peer := c.peerOf(msg)
	if peer == uuid.Nil {
		return true
	}
	cur, ok := c.index[peer]
	if !ok {
		return false
	}

	redelivered := cur.LastMessage.ID == msg.ID
	cur.LastMessage = msg
	if !redelivered && c.countsAsUnread(msg) {
		if _, seen := c.seenLocal[msg.ID]; !seen {
			cur.Unread++
		}
	}
	c.moveToFront(cur)
	return true
}

// RefreshMessage применяет событие обновления строки: поля последнего
// сообщения освежаются на месте, без счётчика и без смены порядка.
func (c *Composer) RefreshMessage(msg domain.Message) {
	peer := c.peerOf(msg)
	if peer == uuid.Nil {
		return
	}
	cur, ok := c.index[peer]
	if !ok || cur.LastMessage.ID != msg.ID {
		return
	}
	cur.LastMessage = msg
}

// ApplySeen обрабатывает сигнал прочтения от собеседника: последнее
// сообщение его диалога помечается прочитанным. Счётчик непрочитанного
// не меняется, его сбрасывает только явное открытие диалога.
func (c *Composer) ApplySeen(peer uuid.UUID) {
	if cur, ok := c.index[peer]; ok {
		cur.LastMessage.Seen = true
	}
}

// ResetUnread обнуляет счётчик диалога при явном открытии его зрителем.
func (c *Composer) ResetUnread(peer uuid.UUID) {
	if cur, ok := c.index[peer]; ok {
		cur.Unread = 0
	}
}

// MarkSeenLocal добавляет сообщения в оптимистичный кэш прочитанного.
func (c *Composer) MarkSeenLocal(ids []uuid.UUID) {
	for _, id := range ids {
		c.seenLocal[id] = struct{}{}
	}
}

// Summaries возвращает копию сводок в порядке показа.
func (c *Composer) Summaries() []domain.ConversationSummary {
	out := make([]domain.ConversationSummary, len(c.summaries))
	for i, s := range c.summaries {
		out[i] = *s
	}
	return out
}

// Peers возвращает собеседников всех известных диалогов.
func (c *Composer) Peers() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.summaries))
	for _, s := range c.summaries {
		out = append(out, s.Peer)
	}
	return out
}

// Has сообщает, известен ли собеседник.
func (c *Composer) Has(peer uuid.UUID) bool {
	_, ok := c.index[peer]
	return ok
}

func (c *Composer) countsAsUnread(msg domain.Message) bool {
	return msg.ReceivedBy(c.viewer) && !msg.Seen
}

// peerOf возвращает собеседника сообщения или uuid.Nil для чужих строк.
func (c *Composer) peerOf(msg domain.Message) uuid.UUID {
	switch c.viewer {
	case msg.SenderID:
		return msg.ReceiverID
	case msg.ReceiverID:
		return msg.SenderID
	default:
		return uuid.Nil
	}
}

func (c *Composer) moveToFront(s *domain.ConversationSummary) {
	idx := -1
	for i, cur := range c.summaries {
		if cur == s {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return
	}
	copy(c.summaries[1:idx+1], c.summaries[:idx])
	c.summaries[0] = s
}
