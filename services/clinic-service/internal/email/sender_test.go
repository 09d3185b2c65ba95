package email

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	raw := string(buildMessage("clinic@example.com", Message{
		To:      "nadia@example.com",
		Subject: "Appointment reminder",
		Body:    "line one\nline two",
	}, now))

	for _, want := range []string{
		"From: clinic@example.com\r\n",
		"To: nadia@example.com\r\n",
		"Subject: Appointment reminder\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n\r\n",
		"line one\r\nline two\r\n",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	s := NewSMTPSender("127.0.0.1", "1", "")
	err := s.Send(context.Background(), Message{To: "a@example.com\r\nBcc: b@example.com", Subject: "x"})
	if err == nil {
		t.Fatal("expected header injection to be rejected")
	}
	if err := s.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected missing recipient to be rejected")
	}
}
