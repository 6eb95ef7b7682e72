package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
)

type stubMessages struct {
	history   []domain.Message
	listErr   error
	created   []domain.Message
	createErr error
	seenIDs   []uuid.UUID
	seenErr   error
	markPeers []uuid.UUID
}

func (s *stubMessages) ListForUser(user uuid.UUID) ([]domain.Message, error) {
	return s.history, s.listErr
}

func (s *stubMessages) CreateMessage(msg domain.Message) (domain.Message, error) {
	if s.createErr != nil {
		return domain.Message{}, s.createErr
	}
	msg.ID = uuid.New()
	s.created = append(s.created, msg)
	return msg, nil
}

func (s *stubMessages) MarkSeenFrom(peer, viewer uuid.UUID) ([]uuid.UUID, error) {
	if s.seenErr != nil {
		return nil, s.seenErr
	}
	s.markPeers = append(s.markPeers, peer)
	return s.seenIDs, nil
}

type fakeFeed struct {
	ch  chan domain.MessageEvent
	err error
}

func (f *fakeFeed) MessageEvents(ctx context.Context, viewer uuid.UUID) (<-chan domain.MessageEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func (f *fakeFeed) Close() error { return nil }

type fakeBus struct {
	mu      sync.Mutex
	signals chan domain.Signal
	joined  []domain.ConversationID
	sent    []domain.Signal
	sendErr error
}

func newFakeBus() *fakeBus {
	return &fakeBus{signals: make(chan domain.Signal, 8)}
}

func (f *fakeBus) Signals() <-chan domain.Signal { return f.signals }

func (f *fakeBus) Join(ctx context.Context, conv domain.ConversationID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, conv)
	return nil
}

func (f *fakeBus) Leave(conv domain.ConversationID) error { return nil }

func (f *fakeBus) Send(ctx context.Context, sig domain.Signal) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sig)
	return nil
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) sentSignals() []domain.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Signal, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakePresence struct {
	online   map[uuid.UUID]bool
	lastSeen map[uuid.UUID]time.Time
	beats    int
	err      error
}

func (f *fakePresence) Heartbeat(ctx context.Context, user uuid.UUID) error {
	f.beats++
	return f.err
}

func (f *fakePresence) Online(ctx context.Context, user uuid.UUID) (bool, error) {
	return f.online[user], f.err
}

func (f *fakePresence) LastSeen(ctx context.Context, user uuid.UUID) (time.Time, error) {
	ts, ok := f.lastSeen[user]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return ts, nil
}

func newTestSession(msgs *stubMessages, bus *fakeBus) *Session {
	return NewSession(userB, msgs, &fakeFeed{ch: make(chan domain.MessageEvent)}, bus, &fakePresence{}, zerolog.Nop(), SessionConfig{})
}

func TestTypingStateExpiry(t *testing.T) {
	ts := make(typingState)
	t0 := baseTime

	ts.signal(userA, t0)
	if !ts.active(userA, t0.Add(2900*time.Millisecond)) {
		t.Fatal("индикатор должен жить 3 секунды")
	}
	if ts.active(userA, t0.Add(3*time.Second)) {
		t.Fatal("индикатор должен погаснуть без новых сигналов")
	}

	// каждый сигнал перезаводит дедлайн
	ts.signal(userA, t0)
	ts.signal(userA, t0.Add(2*time.Second))
	if !ts.active(userA, t0.Add(4*time.Second)) {
		t.Fatal("повторный сигнал должен продлить индикатор")
	}

	ts.sweep(t0.Add(10 * time.Second))
	if len(ts) != 0 {
		t.Fatalf("уборка не удалила просроченные записи: %v", ts)
	}
}

func TestHandleSignalTyping(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	bus := newFakeBus()
	s := newTestSession(msgs, bus)
	if err := s.rebuild(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	s.handleSignal(domain.Signal{
		Kind:         domain.SignalTyping,
		Conversation: domain.NewConversationID(userA, userB),
		From:         userA,
	})

	convs := s.Conversations()
	if len(convs) != 1 || !convs[0].Typing {
		t.Fatalf("ожидали индикатор набора текста: %+v", convs)
	}
}

func TestHandleSignalIgnoresOwnEcho(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	s := newTestSession(msgs, newFakeBus())
	if err := s.rebuild(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	s.handleSignal(domain.Signal{
		Kind:         domain.SignalTyping,
		Conversation: domain.NewConversationID(userA, userB),
		From:         userB,
	})

	if s.Conversations()[0].Typing {
		t.Fatal("свой сигнал не должен включать индикатор")
	}
}

func TestHandleSignalSeen(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	s := newTestSession(msgs, newFakeBus())
	if err := s.rebuild(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	s.handleSignal(domain.Signal{
		Kind:         domain.SignalSeen,
		Conversation: domain.NewConversationID(userA, userB),
		From:         userA,
	})

	conv := s.Conversations()[0]
	if !conv.Summary.LastMessage.Seen {
		t.Fatal("последнее сообщение должно стать прочитанным")
	}
	if conv.Summary.Unread != 2 {
		t.Fatalf("сигнал прочтения не должен менять счётчик: %d", conv.Summary.Unread)
	}
}

func TestCallSignalTransitions(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	s := newTestSession(msgs, newFakeBus())
	conv := domain.NewConversationID(userA, userB)

	s.handleSignal(domain.Signal{Kind: domain.SignalCallOffer, Conversation: conv, From: userA})
	if got := s.Call(userA).Phase; got != CallRingingIn {
		t.Fatalf("после предложения ожидали %q, получили %q", CallRingingIn, got)
	}

	// ответ собеседника принимается только на исходящий дозвон
	s.handleSignal(domain.Signal{Kind: domain.SignalCallAnswer, Conversation: conv, From: userA})
	if got := s.Call(userA).Phase; got != CallRingingIn {
		t.Fatalf("ответ без исходящего дозвона должен игнорироваться, получили %q", got)
	}

	s.SetCall(userA, CallRingingOut)
	s.handleSignal(domain.Signal{Kind: domain.SignalCallAnswer, Conversation: conv, From: userA})
	if got := s.Call(userA).Phase; got != CallActive {
		t.Fatalf("после ответа ожидали %q, получили %q", CallActive, got)
	}

	s.handleSignal(domain.Signal{Kind: domain.SignalCallEnd, Conversation: conv, From: userA})
	if got := s.Call(userA).Phase; got != CallNone {
		t.Fatalf("после завершения ожидали пустую фазу, получили %q", got)
	}
}

func TestHandleMessageEventUnknownPeerRebuilds(t *testing.T) {
	msgs := &stubMessages{}
	bus := newFakeBus()
	s := newTestSession(msgs, bus)
	if err := s.rebuild(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(s.Conversations()) != 0 {
		t.Fatal("история пуста, сводок быть не должно")
	}

	msgs.history = historyForB()
	s.handleMessageEvent(context.Background(), domain.MessageEvent{
		Op:      domain.ChangeInsert,
		Message: msgs.history[0],
	})

	convs := s.Conversations()
	if len(convs) != 1 || convs[0].Summary.Peer != userA {
		t.Fatalf("после пересборки ожидали диалог с A: %+v", convs)
	}
	if len(bus.joined) == 0 {
		t.Fatal("после пересборки сессия должна подключить канал сигналов диалога")
	}
}

func TestPollIfStaleRebuilds(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	s := newTestSession(msgs, newFakeBus())

	// событий не было вовсе: резервный опрос должен собрать сводки
	s.pollIfStale(context.Background())

	if len(s.Conversations()) != 1 {
		t.Fatal("резервный опрос не собрал сводки")
	}
}

func TestSessionStartClose(t *testing.T) {
	msgs := &stubMessages{history: historyForB()}
	bus := newFakeBus()
	presence := &fakePresence{}
	s := NewSession(userB, msgs, &fakeFeed{ch: make(chan domain.MessageEvent)}, bus, presence, zerolog.Nop(), SessionConfig{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	s.Close()

	if presence.beats == 0 {
		t.Fatal("сессия должна отметить присутствие при старте")
	}
}
