// Package events normalizes gateway webhook payloads and deduplicates
// deliveries. Gateway versions disagree on envelope nesting and field names,
// so extraction probes known shapes in a fixed order rather than binding to a
// single schema.
package events

import (
	"strings"
)

// InboundMessage is the normalized form of a gateway webhook delivery.
type InboundMessage struct {
	InstanceID string
	Sender     string
	MessageID  string
	Text       string
	FromBot    bool
	Group      bool
}

// Extract normalizes a decoded webhook body. It returns ok=false when the
// payload carries no user-authored text, which callers treat as an event to
// acknowledge and skip (status updates, reactions, media without captions).
func Extract(payload map[string]any) (InboundMessage, bool) {
	msg := InboundMessage{
		InstanceID: firstString(payload, "instance", "instanceName", "instanceId"),
	}

	data := childMap(payload, "data")
	if data == nil {
		data = payload
	}
	if nested := childMap(data, "message"); nested != nil && childMap(nested, "key") != nil {
		// Some versions wrap the whole message one level deeper.
		data = nested
	}

	key := childMap(data, "key")
	if key != nil {
		msg.Sender = firstString(key, "remoteJid", "remoteJID")
		msg.MessageID = firstString(key, "id")
		msg.FromBot = boolValue(key, "fromMe")
	}
	if msg.Sender == "" {
		msg.Sender = firstString(data, "remoteJid", "from", "sender", "phone")
	}
	if msg.MessageID == "" {
		msg.MessageID = firstString(data, "id", "messageId", "message_id")
	}
	if !msg.FromBot {
		msg.FromBot = boolValue(data, "fromMe")
	}

	msg.Group = strings.HasSuffix(msg.Sender, "@g.us")
	msg.Sender = normalizeSender(msg.Sender)

	msg.Text = extractText(data)
	if msg.Text == "" || msg.Sender == "" {
		return msg, false
	}
	return msg, true
}

// extractText walks the known message shapes in priority order. Captions and
// interactive replies count as user text; everything else does not.
func extractText(data map[string]any) string {
	message := childMap(data, "message")
	if message == nil {
		return strings.TrimSpace(firstString(data, "text", "body"))
	}
	if text := firstString(message, "conversation"); text != "" {
		return strings.TrimSpace(text)
	}
	if ext := childMap(message, "extendedTextMessage"); ext != nil {
		if text := firstString(ext, "text"); text != "" {
			return strings.TrimSpace(text)
		}
	}
	for _, media := range []string{"imageMessage", "videoMessage", "documentMessage"} {
		if m := childMap(message, media); m != nil {
			if caption := firstString(m, "caption"); caption != "" {
				return strings.TrimSpace(caption)
			}
		}
	}
	if btn := childMap(message, "buttonsResponseMessage"); btn != nil {
		if text := firstString(btn, "selectedDisplayText", "selectedButtonId"); text != "" {
			return strings.TrimSpace(text)
		}
	}
	if list := childMap(message, "listResponseMessage"); list != nil {
		if text := firstString(list, "title"); text != "" {
			return strings.TrimSpace(text)
		}
		if row := childMap(list, "singleSelectReply"); row != nil {
			return strings.TrimSpace(firstString(row, "selectedRowId"))
		}
	}
	return ""
}

// normalizeSender reduces a JID or phone field to bare digits.
func normalizeSender(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func childMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	child, _ := m[key].(map[string]any)
	return child
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func boolValue(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
