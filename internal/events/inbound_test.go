package events

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return payload
}

func TestExtractConversationText(t *testing.T) {
	payload := decode(t, `{
		"instance": "clinic-1",
		"data": {
			"key": {"remoteJid": "5511987654321@s.whatsapp.net", "fromMe": false, "id": "ABC123"},
			"message": {"conversation": "  Quero agendar um corte  "}
		}
	}`)
	msg, ok := Extract(payload)
	if !ok {
		t.Fatal("expected extractable message")
	}
	if msg.InstanceID != "clinic-1" {
		t.Fatalf("instance: got %q", msg.InstanceID)
	}
	if msg.Sender != "5511987654321" {
		t.Fatalf("sender: got %q", msg.Sender)
	}
	if msg.MessageID != "ABC123" {
		t.Fatalf("message id: got %q", msg.MessageID)
	}
	if msg.Text != "Quero agendar um corte" {
		t.Fatalf("text: got %q", msg.Text)
	}
	if msg.FromBot || msg.Group {
		t.Fatalf("flags: fromBot=%v group=%v", msg.FromBot, msg.Group)
	}
}

func TestExtractTextPriority(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"extended text", `{"extendedTextMessage": {"text": "ola"}}`, "ola"},
		{"image caption", `{"imageMessage": {"caption": "foto do corte"}}`, "foto do corte"},
		{"button reply", `{"buttonsResponseMessage": {"selectedDisplayText": "Confirmar"}}`, "Confirmar"},
		{"list reply", `{"listResponseMessage": {"title": "Corte Masculino"}}`, "Corte Masculino"},
		{"conversation wins over caption", `{"conversation": "oi", "imageMessage": {"caption": "foto"}}`, "oi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := decode(t, `{
				"data": {
					"key": {"remoteJid": "5511987654321@s.whatsapp.net", "id": "X1"},
					"message": `+tt.message+`
				}
			}`)
			msg, ok := Extract(payload)
			if !ok {
				t.Fatal("expected extractable message")
			}
			if msg.Text != tt.want {
				t.Fatalf("got %q, want %q", msg.Text, tt.want)
			}
		})
	}
}

func TestExtractSkipsTextlessPayloads(t *testing.T) {
	payloads := []string{
		`{"data": {"key": {"remoteJid": "5511987654321@s.whatsapp.net", "id": "X1"}, "message": {"reactionMessage": {"text": "👍"}}}}`,
		`{"data": {"key": {"remoteJid": "5511987654321@s.whatsapp.net", "id": "X2"}, "message": {"imageMessage": {}}}}`,
		`{"data": {"status": "DELIVERY_ACK"}}`,
		`{}`,
	}
	for _, raw := range payloads {
		if _, ok := Extract(decode(t, raw)); ok {
			t.Fatalf("expected skip for %s", raw)
		}
	}
}

func TestExtractGroupAndBotFlags(t *testing.T) {
	payload := decode(t, `{
		"data": {
			"key": {"remoteJid": "123456789-987654@g.us", "fromMe": true, "id": "G1"},
			"message": {"conversation": "bom dia"}
		}
	}`)
	msg, ok := Extract(payload)
	if !ok {
		t.Fatal("expected extractable message")
	}
	if !msg.Group {
		t.Fatal("expected group flag")
	}
	if !msg.FromBot {
		t.Fatal("expected fromBot flag")
	}
}

func TestExtractFlatShape(t *testing.T) {
	payload := decode(t, `{
		"instanceName": "clinic-2",
		"data": {"from": "+55 (11) 98765-4321", "messageId": "M9", "text": "marcar horario"}
	}`)
	msg, ok := Extract(payload)
	if !ok {
		t.Fatal("expected extractable message")
	}
	if msg.Sender != "5511987654321" {
		t.Fatalf("sender: got %q", msg.Sender)
	}
	if msg.MessageID != "M9" {
		t.Fatalf("message id: got %q", msg.MessageID)
	}
	if msg.Text != "marcar horario" {
		t.Fatalf("text: got %q", msg.Text)
	}
}
