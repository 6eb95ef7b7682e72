package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// ErrNoCall возвращается при ответе на звонок, которого нет.
var ErrNoCall = errors.New("нет входящего звонка")

// typingSendThrottle ограничивает частоту исходящих сигналов набора текста.
const typingSendThrottle = time.Second

// maxContentLength ограничивает текст сообщения. Строка целиком уходит в
// событие платформы, а у полезной нагрузки события есть предел размера.
const maxContentLength = 2000

// Service реализует пользовательские операции чатов поверх живой сессии.
// Ошибки здесь доводятся до вызывающего: операции запущены пользователем.
type Service struct {
	viewer   uuid.UUID
	session  *Session
	messages domain.MessageRepo
	bus      domain.SignalBus
	presence domain.Presence
	log      zerolog.Logger

	typingMu   sync.Mutex
	typingSent map[uuid.UUID]time.Time
}

// NewService создаёт сервис чатов.
func NewService(viewer uuid.UUID, session *Session, messages domain.MessageRepo, bus domain.SignalBus, presence domain.Presence, logger zerolog.Logger) *Service {
	return &Service{
		viewer:     viewer,
		session:    session,
		messages:   messages,
		bus:        bus,
		presence:   presence,
		log:        logger,
		typingSent: make(map[uuid.UUID]time.Time),
	}
}

// Conversations возвращает снимок диалогов в порядке показа.
func (s *Service) Conversations() []ConversationView {
	return s.session.Conversations()
}

// SendMessage вставляет сообщение и оптимистично обновляет локальные сводки.
func (s *Service) SendMessage(peer uuid.UUID, content, mediaKey string) (domain.Message, error) {
	if err := s.checkPeer(peer); err != nil {
		return domain.Message{}, err
	}
	if strings.TrimSpace(content) == "" && mediaKey == "" {
		return domain.Message{}, fmt.Errorf("пустое сообщение: %w", domain.ErrInvalidInput)
	}
	if len([]rune(content)) > maxContentLength {
		return domain.Message{}, fmt.Errorf("слишком длинное сообщение: %w", domain.ErrInvalidInput)
	}

	msg := domain.Message{
		SenderID:   s.viewer,
		ReceiverID: peer,
		Content:    content,
		MediaKey:   mediaKey,
		CreatedAt:  time.Now().UTC(),
	}
	saved, err := s.messages.CreateMessage(msg)
	if err != nil {
		return domain.Message{}, fmt.Errorf("отправка сообщения: %w", err)
	}
	s.session.ApplyLocalMessage(saved)
	return saved, nil
}

// OpenConversation фиксирует явное открытие диалога: входящие от собеседника
// помечаются прочитанными в хранилище, локальный счётчик обнуляется,
// собеседнику уходит сигнал прочтения. Сбой сигнала не откатывает пометку:
// он лишь ускоряет обновление у собеседника.
func (s *Service) OpenConversation(ctx context.Context, peer uuid.UUID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}

	ids, err := s.messages.MarkSeenFrom(peer, s.viewer)
	if err != nil {
		return fmt.Errorf("пометка прочитанного: %w", err)
	}
	s.session.MarkOpened(peer, ids)

	if err := s.send(ctx, peer, domain.SignalSeen, nil); err != nil {
		s.log.Error().Err(err).Stringer("peer", peer).Msg("chat: сигнал прочтения")
	}
	return nil
}

// Typing шлёт собеседнику сигнал набора текста, не чаще раза в секунду.
func (s *Service) Typing(ctx context.Context, peer uuid.UUID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}

	now := time.Now()
	s.typingMu.Lock()
	if last, ok := s.typingSent[peer]; ok && now.Sub(last) < typingSendThrottle {
		s.typingMu.Unlock()
		return nil
	}
	s.typingSent[peer] = now
	s.typingMu.Unlock()

	if err := s.send(ctx, peer, domain.SignalTyping, nil); err != nil {
		return fmt.Errorf("сигнал набора текста: %w", err)
	}
	return nil
}

// StartCall шлёт предложение звонка и переводит диалог в исходящий дозвон.
func (s *Service) StartCall(ctx context.Context, peer uuid.UUID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}
	if s.session.Call(peer).Phase != CallNone {
		return fmt.Errorf("звонок уже идёт: %w", domain.ErrInvalidInput)
	}
	if err := s.send(ctx, peer, domain.SignalCallOffer, nil); err != nil {
		return fmt.Errorf("предложение звонка: %w", err)
	}
	s.session.SetCall(peer, CallRingingOut)
	return nil
}

// AnswerCall принимает входящий звонок.
func (s *Service) AnswerCall(ctx context.Context, peer uuid.UUID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}
	if s.session.Call(peer).Phase != CallRingingIn {
		return ErrNoCall
	}
	if err := s.send(ctx, peer, domain.SignalCallAnswer, nil); err != nil {
		return fmt.Errorf("ответ на звонок: %w", err)
	}
	s.session.SetCall(peer, CallActive)
	return nil
}

// EndCall завершает звонок в любой фазе.
func (s *Service) EndCall(ctx context.Context, peer uuid.UUID) error {
	if err := s.checkPeer(peer); err != nil {
		return err
	}
	if s.session.Call(peer).Phase == CallNone {
		return nil
	}
	if err := s.send(ctx, peer, domain.SignalCallEnd, nil); err != nil {
		return fmt.Errorf("завершение звонка: %w", err)
	}
	s.session.SetCall(peer, CallNone)
	return nil
}

// PeerPresence возвращает эфемерный статус собеседника.
func (s *Service) PeerPresence(ctx context.Context, peer uuid.UUID) (domain.PresenceState, error) {
	if err := s.checkPeer(peer); err != nil {
		return domain.PresenceState{}, err
	}

	online, err := s.presence.Online(ctx, peer)
	if err != nil {
		return domain.PresenceState{}, fmt.Errorf("статус присутствия: %w", err)
	}
	last, err := s.presence.LastSeen(ctx, peer)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// собеседник ещё ни разу не был в сети
			return domain.PresenceState{Online: online}, nil
		}
		return domain.PresenceState{}, fmt.Errorf("метка последнего визита: %w", err)
	}
	return domain.PresenceState{Online: online, LastSeen: last}, nil
}

func (s *Service) send(ctx context.Context, peer uuid.UUID, kind domain.SignalKind, payload []byte) error {
	sig := domain.Signal{
		Kind:         kind,
		Conversation: domain.NewConversationID(s.viewer, peer),
		From:         s.viewer,
		Payload:      payload,
		SentAt:       time.Now().UTC(),
	}
	if err := s.bus.Send(ctx, sig); err != nil {
		return err
	}
	metrics.IncSignalSent(string(kind))
	return nil
}

func (s *Service) checkPeer(peer uuid.UUID) error {
	if peer == uuid.Nil || peer == s.viewer {
		return fmt.Errorf("недопустимый собеседник: %w", domain.ErrInvalidInput)
	}
	return nil
}
