package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

const signalBuffer = 64

// Bus реализует широковещательный примитив платформы поверх pub/sub.
// Одна подписка обслуживает все диалоги: каналы добавляются и снимаются
// по мере появления собеседников, поток сигналов остаётся единым.
type Bus struct {
	client *redis.Client
	log    zerolog.Logger

	mu     sync.Mutex
	sub    *redis.PubSub
	joined map[domain.ConversationID]struct{}
	closed bool

	out  chan domain.Signal
	done chan struct{}
}

var _ domain.SignalBus = (*Bus)(nil)

// NewBus создаёт шину сигналов и запускает приём.
func NewBus(client *redis.Client, log zerolog.Logger) *Bus {
	b := &Bus{
		client: client,
		log:    log,
		sub:    client.Subscribe(context.Background()),
		joined: make(map[domain.ConversationID]struct{}),
		out:    make(chan domain.Signal, signalBuffer),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b
}

// Signals возвращает единый поток сигналов всех подключённых диалогов.
// Канал закрывается после Close.
func (b *Bus) Signals() <-chan domain.Signal {
	return b.out
}

// Join подключает канал диалога. Повторное подключение — no-op.
func (b *Bus) Join(ctx context.Context, conv domain.ConversationID) error {
	if conv.IsZero() {
		return domain.ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("broadcast: шина закрыта")
	}
	if _, ok := b.joined[conv]; ok {
		return nil
	}
	start := time.Now()
	err := b.sub.Subscribe(ctx, conv.SignalChannel())
	metrics.ObserveNetworkRequest("broadcast", "subscribe", "signals", start, err)
	if err != nil {
		return fmt.Errorf("подписка на канал диалога: %w", err)
	}
	b.joined[conv] = struct{}{}
	return nil
}

// Leave отключает канал диалога.
func (b *Bus) Leave(conv domain.ConversationID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if _, ok := b.joined[conv]; !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	err := b.sub.Unsubscribe(ctx, conv.SignalChannel())
	metrics.ObserveNetworkRequest("broadcast", "unsubscribe", "signals", start, err)
	if err != nil {
		return fmt.Errorf("отписка от канала диалога: %w", err)
	}
	delete(b.joined, conv)
	return nil
}

// Send публикует сигнал в канал его диалога. Доставка не гарантируется:
// получат только подписанные в этот момент клиенты.
func (b *Bus) Send(ctx context.Context, sig domain.Signal) error {
	if sig.Conversation.IsZero() {
		return domain.ErrInvalidInput
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("кодирование сигнала: %w", err)
	}
	start := time.Now()
	err = b.client.Publish(ctx, sig.Conversation.SignalChannel(), payload).Err()
	metrics.ObserveNetworkRequest("broadcast", "publish", "signals", start, err)
	if err != nil {
		return fmt.Errorf("публикация сигнала: %w", err)
	}
	return nil
}

// Close снимает подписку и дожидается остановки приёма.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	err := b.sub.Close()
	<-b.done
	return err
}

func (b *Bus) pump() {
	defer close(b.done)
	for msg := range b.sub.Channel() {
		var sig domain.Signal
		if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
			b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("broadcast: нечитаемый сигнал")
			continue
		}
		select {
		case b.out <- sig:
		default:
			b.log.Warn().Str("kind", string(sig.Kind)).Msg("broadcast: буфер переполнен, сигнал отброшен")
		}
	}
	close(b.out)
}
