package changefeed

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clipstream-client/internal/domain"
)

func testListener() *Listener {
	return &Listener{log: zerolog.Nop()}
}

func notifyPayload(op, table string, msg domain.Message) string {
	return fmt.Sprintf(`{"op":%q,"table":%q,"row":{"id":%q,"sender_id":%q,"receiver_id":%q,"content":%q,"media_key":null,"seen":%t,"created_at":%q}}`,
		op, table, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Seen, msg.CreatedAt.Format(time.RFC3339Nano))
}

func TestDecodeDeliversViewerMessages(t *testing.T) {
	viewer := uuid.New()
	peer := uuid.New()
	l := testListener()

	msg := domain.Message{
		ID:         uuid.New(),
		SenderID:   peer,
		ReceiverID: viewer,
		Content:    "привет",
		CreatedAt:  time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	event, ok := l.decode(notifyPayload("INSERT", "messages", msg), viewer)
	if !ok {
		t.Fatalf("входящее сообщение зрителя должно доставляться")
	}
	if event.Op != domain.ChangeInsert {
		t.Fatalf("ожидали INSERT, получили %s", event.Op)
	}
	if event.Message.ID != msg.ID || event.Message.Content != msg.Content {
		t.Fatalf("сообщение декодировано неверно: %+v", event.Message)
	}
	if !event.Message.CreatedAt.Equal(msg.CreatedAt) {
		t.Fatalf("метка времени потеряна: %s", event.Message.CreatedAt)
	}

	if _, ok := l.decode(notifyPayload("UPDATE", "messages", msg), viewer); !ok {
		t.Fatalf("событие UPDATE должно доставляться")
	}
}

func TestDecodeDeliversOwnOutgoing(t *testing.T) {
	viewer := uuid.New()
	l := testListener()

	msg := domain.Message{ID: uuid.New(), SenderID: viewer, ReceiverID: uuid.New(), Content: "ок", CreatedAt: time.Now().UTC()}
	if _, ok := l.decode(notifyPayload("INSERT", "messages", msg), viewer); !ok {
		t.Fatalf("собственное исходящее сообщение должно доставляться")
	}
}

func TestDecodeFiltersForeignRows(t *testing.T) {
	viewer := uuid.New()
	l := testListener()

	foreign := domain.Message{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: uuid.New(), Content: "мимо", CreatedAt: time.Now().UTC()}
	if _, ok := l.decode(notifyPayload("INSERT", "messages", foreign), viewer); ok {
		t.Fatalf("чужая переписка не должна доставляться")
	}

	mine := domain.Message{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: viewer, Content: "лайк", CreatedAt: time.Now().UTC()}
	if _, ok := l.decode(notifyPayload("INSERT", "post_likes", mine), viewer); ok {
		t.Fatalf("события чужих таблиц не должны доставляться")
	}
}

func TestDecodeSkipsMalformedPayload(t *testing.T) {
	l := testListener()
	if _, ok := l.decode("{оборванный json", uuid.New()); ok {
		t.Fatalf("нечитаемая нагрузка должна отбрасываться")
	}
	if _, ok := l.decode(`{"op":"INSERT","table":"messages","row":{"id":"не-uuid"}}`, uuid.New()); ok {
		t.Fatalf("нечитаемая строка должна отбрасываться")
	}
}
