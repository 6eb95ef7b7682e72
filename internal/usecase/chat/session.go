package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// typingTTL — время жизни индикатора набора текста без новых сигналов.
const typingTTL = 3 * time.Second

// typingSweepEvery — шаг уборки просроченных индикаторов.
const typingSweepEvery = time.Second

// typingState хранит дедлайны индикатора набора текста по собеседникам.
// Каждый сигнал перезаводит дедлайн; чтение сверяется с дедлайном точно,
// уборка лишь освобождает память.
type typingState map[uuid.UUID]time.Time

func (t typingState) signal(peer uuid.UUID, now time.Time) {
	t[peer] = now.Add(typingTTL)
}

func (t typingState) active(peer uuid.UUID, now time.Time) bool {
	deadline, ok := t[peer]
	return ok && deadline.After(now)
}

func (t typingState) sweep(now time.Time) {
	for peer, deadline := range t {
		if !deadline.After(now) {
			delete(t, peer)
		}
	}
}

// CallPhase — фаза сигналинга звонка в диалоге.
type CallPhase string

const (
	// CallNone — звонка нет.
	CallNone CallPhase = ""
	// CallRingingIn — входящее предложение звонка.
	CallRingingIn CallPhase = "ringing_in"
	// CallRingingOut — исходящее предложение звонка.
	CallRingingOut CallPhase = "ringing_out"
	// CallActive — звонок принят обеими сторонами.
	CallActive CallPhase = "active"
)

// CallState описывает состояние сигналинга звонка с собеседником.
type CallState struct {
	Phase CallPhase
	Since time.Time
}

// ConversationView — снимок диалога для показа: сводка плюс живые индикаторы.
type ConversationView struct {
	Summary domain.ConversationSummary
	Typing  bool
	Call    CallState
}

// SessionConfig задаёт периодику фоновых задач сессии.
type SessionConfig struct {
	// HeartbeatEvery — период heartbeat-а присутствия.
	HeartbeatEvery time.Duration
	// PollEvery — период резервного опроса истории при молчании событий.
	PollEvery time.Duration
}

func (c *SessionConfig) withDefaults() {
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 30 * time.Second
	}
	if c.PollEvery <= 0 {
		c.PollEvery = time.Minute
	}
}

// Session владеет живым состоянием чатов: подписками на события платформы,
// таймерами и сводками диалогов. Состояние меняется только внутри цикла Run
// и методов с блокировкой; наружу отдаются копии. Close останавливает всё,
// что сессия запустила, ни один таймер её не переживает.
type Session struct {
	viewer   uuid.UUID
	messages domain.MessageRepo
	feed     domain.ChangeFeed
	bus      domain.SignalBus
	presence domain.Presence
	log      zerolog.Logger
	cfg      SessionConfig

	mu        sync.RWMutex
	composer  *Composer
	typing    typingState
	calls     map[uuid.UUID]CallState
	lastEvent time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession создаёт сессию чатов для зрителя.
func NewSession(viewer uuid.UUID, messages domain.MessageRepo, feed domain.ChangeFeed, bus domain.SignalBus, presence domain.Presence, logger zerolog.Logger, cfg SessionConfig) *Session {
	cfg.withDefaults()
	return &Session{
		viewer:   viewer,
		messages: messages,
		feed:     feed,
		bus:      bus,
		presence: presence,
		log:      logger,
		cfg:      cfg,
		composer: NewComposer(viewer),
		typing:   make(typingState),
		calls:    make(map[uuid.UUID]CallState),
		done:     make(chan struct{}),
	}
}

// Start подписывается на события, строит сводки и запускает цикл сессии.
// Ошибка холодной сборки не фатальна: сессия остаётся на пустом состоянии,
// её поправит резервный опрос.
func (s *Session) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	events, err := s.feed.MessageEvents(ctx, s.viewer)
	if err != nil {
		s.cancel()
		return fmt.Errorf("подписка на события сообщений: %w", err)
	}

	if err := s.rebuild(ctx); err != nil {
		s.log.Error().Err(err).Msg("chat: первичная сборка диалогов")
	}

	go s.run(ctx, events)
	return nil
}

// Close останавливает цикл сессии и дожидается его завершения.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context, events <-chan domain.MessageEvent) {
	defer close(s.done)

	heartbeat := time.NewTicker(s.cfg.HeartbeatEvery)
	defer heartbeat.Stop()
	sweep := time.NewTicker(typingSweepEvery)
	defer sweep.Stop()
	poll := time.NewTicker(s.cfg.PollEvery)
	defer poll.Stop()

	signals := s.bus.Signals()
	s.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleMessageEvent(ctx, ev)
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.handleSignal(sig)
		case <-sweep.C:
			s.mu.Lock()
			s.typing.sweep(time.Now())
			s.mu.Unlock()
		case <-heartbeat.C:
			s.beat(ctx)
		case <-poll.C:
			s.pollIfStale(ctx)
		}
	}
}

// handleMessageEvent применяет событие изменения сообщения. Неизвестный
// собеседник ведёт к полной пересборке: дешёвая вставка пропустила бы его
// метаданные. Ошибки логируются, состояние остаётся последним известным.
func (s *Session) handleMessageEvent(ctx context.Context, ev domain.MessageEvent) {
	metrics.IncChatEvent(string(ev.Op))

	s.mu.Lock()
	s.lastEvent = time.Now()
	rebuildNeeded := false
	switch ev.Op {
	case domain.ChangeInsert:
		rebuildNeeded = !s.composer.ApplyMessage(ev.Message)
	case domain.ChangeUpdate:
		s.composer.RefreshMessage(ev.Message)
	default:
		// удаления редки: до ближайшей пересборки показывается прежнее состояние
	}
	s.mu.Unlock()

	if !rebuildNeeded {
		return
	}
	if err := s.rebuild(ctx); err != nil {
		s.log.Error().Err(err).Msg("chat: пересборка по новому собеседнику")
	}
}

// handleSignal применяет сигнал широковещательного канала. Свои сигналы,
// вернувшиеся эхом, пропускаются.
func (s *Session) handleSignal(sig domain.Signal) {
	if sig.From == s.viewer || !sig.Conversation.Contains(s.viewer) {
		return
	}
	metrics.IncSignalReceived(string(sig.Kind))
	peer := sig.Conversation.Peer(s.viewer)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch sig.Kind {
	case domain.SignalTyping:
		s.typing.signal(peer, now)
	case domain.SignalSeen:
		s.composer.ApplySeen(peer)
	case domain.SignalCallOffer:
		if s.calls[peer].Phase == CallNone {
			s.calls[peer] = CallState{Phase: CallRingingIn, Since: now}
		}
	case domain.SignalCallAnswer:
		if s.calls[peer].Phase == CallRingingOut {
			s.calls[peer] = CallState{Phase: CallActive, Since: now}
		}
	case domain.SignalCallEnd:
		delete(s.calls, peer)
	}
}

// rebuild перечитывает историю и подключает каналы сигналов новых диалогов.
func (s *Session) rebuild(ctx context.Context) error {
	msgs, err := s.messages.ListForUser(s.viewer)
	if err != nil {
		return fmt.Errorf("история сообщений: %w", err)
	}

	s.mu.Lock()
	s.composer.Rebuild(msgs)
	peers := s.composer.Peers()
	s.lastEvent = time.Now()
	s.mu.Unlock()

	metrics.IncChatRebuild()
	s.joinPeers(ctx, peers)
	return nil
}

func (s *Session) joinPeers(ctx context.Context, peers []uuid.UUID) {
	for _, peer := range peers {
		conv := domain.NewConversationID(s.viewer, peer)
		if err := s.bus.Join(ctx, conv); err != nil {
			s.log.Error().Err(err).Stringer("peer", peer).Msg("chat: подключение к каналу сигналов")
		}
	}
}

func (s *Session) beat(ctx context.Context) {
	if err := s.presence.Heartbeat(ctx, s.viewer); err != nil {
		s.log.Error().Err(err).Msg("chat: heartbeat присутствия")
	}
}

// pollIfStale пересобирает сводки, если живые события давно молчат.
func (s *Session) pollIfStale(ctx context.Context) {
	s.mu.RLock()
	stale := time.Since(s.lastEvent) >= s.cfg.PollEvery
	s.mu.RUnlock()
	if !stale {
		return
	}
	if err := s.rebuild(ctx); err != nil {
		s.log.Error().Err(err).Msg("chat: резервный опрос истории")
	}
}

// Conversations возвращает снимок диалогов в порядке показа.
func (s *Session) Conversations() []ConversationView {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	sums := s.composer.Summaries()
	out := make([]ConversationView, 0, len(sums))
	for _, sum := range sums {
		out = append(out, ConversationView{
			Summary: sum,
			Typing:  s.typing.active(sum.Peer, now),
			Call:    s.calls[sum.Peer],
		})
	}
	return out
}

// ApplyLocalMessage оптимистично применяет только что отправленное сообщение.
// Для нового собеседника локальная вставка не делается: пересборку выполнит
// событие платформы о вставленной строке.
func (s *Session) ApplyLocalMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composer.ApplyMessage(msg)
}

// MarkOpened фиксирует явное открытие диалога зрителем: сброс счётчика и
// пополнение кэша прочитанного.
func (s *Session) MarkOpened(peer uuid.UUID, seenIDs []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.composer.MarkSeenLocal(seenIDs)
	s.composer.ResetUnread(peer)
}

// Call возвращает текущее состояние звонка с собеседником.
func (s *Session) Call(peer uuid.UUID) CallState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[peer]
}

// SetCall выставляет состояние звонка по действию зрителя.
func (s *Session) SetCall(peer uuid.UUID, phase CallPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phase == CallNone {
		delete(s.calls, peer)
		return
	}
	s.calls[peer] = CallState{Phase: phase, Since: time.Now()}
}
