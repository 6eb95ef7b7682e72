package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNewConversationIDOrderIndependent(t *testing.T) {
	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")

	ab := NewConversationID(a, b)
	ba := NewConversationID(b, a)

	if ab != ba {
		t.Fatalf("идентификатор зависит от порядка участников: %s != %s", ab, ba)
	}
	if ab.SignalChannel() != ba.SignalChannel() {
		t.Fatalf("имена каналов различаются: %s и %s", ab.SignalChannel(), ba.SignalChannel())
	}
}

func TestConversationIDPeer(t *testing.T) {
	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	conv := NewConversationID(b, a)

	if got := conv.Peer(a); got != b {
		t.Fatalf("Peer(a) = %s, ожидался %s", got, b)
	}
	if got := conv.Peer(b); got != a {
		t.Fatalf("Peer(b) = %s, ожидался %s", got, a)
	}
	if !conv.Contains(a) || !conv.Contains(b) {
		t.Fatal("участники не найдены в диалоге")
	}
	if conv.Contains(uuid.MustParse("cccccccc-0000-0000-0000-000000000003")) {
		t.Fatal("посторонний пользователь оказался участником")
	}
}

func TestSignalJSONRoundTrip(t *testing.T) {
	a := uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	b := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")

	in := Signal{
		Kind:         SignalTyping,
		Conversation: NewConversationID(a, b),
		From:         b,
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out Signal
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Conversation != in.Conversation {
		t.Fatalf("диалог после round-trip: %s, ожидался %s", out.Conversation, in.Conversation)
	}
	if out.Kind != SignalTyping || out.From != b {
		t.Fatalf("сигнал искажён: %+v", out)
	}
}
