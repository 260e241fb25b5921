package notify

import (
	"context"
	"testing"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "bot@example.com",
	}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "bot@example.com",
	}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "AgendaBot" {
		t.Errorf("expected default from name, got %q", sender.fromName)
	}
}

func TestSendGridSenderNilClient(t *testing.T) {
	sender := &SendGridSender{}
	err := sender.Send(context.Background(), EmailMessage{
		To:      "dono@alfa.com",
		Subject: "Agendamento",
		Body:    "corpo",
	})
	if err == nil {
		t.Error("expected error for unconfigured client")
	}
}

func TestNewSESSenderNilWithoutClient(t *testing.T) {
	if sender := NewSESSender(nil, SESConfig{FromEmail: "bot@example.com"}, nil); sender != nil {
		t.Error("expected nil sender without a client")
	}
}

func TestStubEmailSender(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "dono@alfa.com"}); err != nil {
		t.Fatalf("stub must never fail: %v", err)
	}
}
