package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
	"clipstream-client/internal/infra/metrics"
)

// Канал уведомлений фиксированный: триггер платформы кладёт имя таблицы
// и операцию в полезную нагрузку, фильтрация происходит на клиенте.
const changeChannel = "message_changes"

const (
	eventBuffer  = 64
	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// ErrAlreadyListening возвращается при повторной подписке на поток событий.
var ErrAlreadyListening = errors.New("changefeed: подписка уже запущена")

// Listener слушает уведомления БД на выделенном соединении и превращает
// их в события сообщений зрителя. Соединение переустанавливается с
// экспоненциальной паузой, пропущенные за время разрыва события
// восполняет периодический опрос сессии.
type Listener struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ domain.ChangeFeed = (*Listener)(nil)

// NewListener создаёт слушателя поверх пула платформы.
func NewListener(pool *pgxpool.Pool, log zerolog.Logger) *Listener {
	return &Listener{pool: pool, log: log}
}

// MessageEvents подписывает на события сообщений зрителя. Канал закрывается
// при Close или отмене контекста.
func (l *Listener) MessageEvents(ctx context.Context, viewer uuid.UUID) (<-chan domain.MessageEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("changefeed: слушатель закрыт")
	}
	if l.started {
		return nil, ErrAlreadyListening
	}
	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan domain.MessageEvent, eventBuffer)
	l.started = true
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx, viewer, out)
	return out, nil
}

// Close останавливает слушателя и дожидается завершения цикла.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

func (l *Listener) run(ctx context.Context, viewer uuid.UUID, out chan<- domain.MessageEvent) {
	defer close(out)
	defer close(l.done)

	backoff := reconnectMin
	for {
		err := l.listen(ctx, viewer, out, &backoff)
		if ctx.Err() != nil {
			return
		}
		l.log.Warn().Err(err).Dur("retry_in", backoff).Msg("changefeed: соединение потеряно")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (l *Listener) listen(ctx context.Context, viewer uuid.UUID, out chan<- domain.MessageEvent, backoff *time.Duration) error {
	start := time.Now()
	conn, err := pgx.ConnectConfig(ctx, l.pool.Config().ConnConfig.Copy())
	metrics.ObserveNetworkRequest("platform-db", "changefeed_connect", changeChannel, start, err)
	if err != nil {
		return fmt.Errorf("подключение слушателя: %w", err)
	}
	defer conn.Close(context.Background())

	start = time.Now()
	_, err = conn.Exec(ctx, "LISTEN "+changeChannel)
	metrics.ObserveNetworkRequest("platform-db", "changefeed_listen", changeChannel, start, err)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", changeChannel, err)
	}
	*backoff = reconnectMin
	l.log.Info().Str("channel", changeChannel).Msg("changefeed: подписка установлена")

	for {
		note, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("ожидание уведомления: %w", err)
		}
		event, ok := l.decode(note.Payload, viewer)
		if !ok {
			continue
		}
		select {
		case out <- event:
		default:
			// Потребитель отстал: событие отбрасываем, рассинхронизацию
			// закроет периодический опрос.
			metrics.IncChangeFeedDrop()
			l.log.Warn().Str("op", string(event.Op)).Msg("changefeed: буфер переполнен, событие отброшено")
		}
	}
}

type messageRow struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	MediaKey   string    `json:"media_key"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		MediaKey:   r.MediaKey,
		Seen:       r.Seen,
		CreatedAt:  r.CreatedAt,
	}
}

// decode разбирает полезную нагрузку уведомления и отбрасывает события
// чужих таблиц и чужих переписок.
func (l *Listener) decode(payload string, viewer uuid.UUID) (domain.MessageEvent, bool) {
	var change domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.log.Warn().Err(err).Msg("changefeed: нечитаемое уведомление")
		return domain.MessageEvent{}, false
	}
	if change.Table != "messages" {
		return domain.MessageEvent{}, false
	}
	var row messageRow
	if err := json.Unmarshal(change.Row, &row); err != nil {
		l.log.Warn().Err(err).Str("op", string(change.Op)).Msg("changefeed: нечитаемая строка сообщения")
		return domain.MessageEvent{}, false
	}
	msg := row.toDomain()
	if msg.SenderID != viewer && !msg.ReceivedBy(viewer) {
		return domain.MessageEvent{}, false
	}
	return domain.MessageEvent{Op: change.Op, Message: msg}, true
}
