package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSMTPSender_NotConfigured(t *testing.T) {
	s := NewSMTPSender(Config{})
	err := s.Send(context.Background(), Message{To: "a@b.c", Subject: "x", Body: "y"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestBuildEmailData_HeadersAndBody(t *testing.T) {
	data := buildEmailData("noreply@ja.example", Message{
		To:      "user@example.com",
		Subject: "New job match",
		Body:    "Backend Engineer at Acme",
	})

	for _, want := range []string{
		"From: noreply@ja.example\r\n",
		"To: user@example.com\r\n",
		"Subject: New job match\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n\r\nBackend Engineer at Acme",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("email data missing %q\n%s", want, data)
		}
	}
}
