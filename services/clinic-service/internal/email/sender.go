package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an unauthenticated relay such as Mailpit.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host, port, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@clinicbook.local"
	}
	return &SMTPSender{
		addr: net.JoinHostPort(strings.TrimSpace(host), strings.TrimSpace(port)),
		from: from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email: recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To+msg.Subject, "\r\n") {
		return errors.New("email: header values must not contain line breaks")
	}
	return smtp.SendMail(s.addr, nil, s.from, []string{msg.To}, buildMessage(s.from, msg, time.Now()))
}

func buildMessage(from string, msg Message, now time.Time) []byte {
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		msg.To,
		msg.Subject,
		now.Format(time.RFC1123Z),
		strings.ReplaceAll(msg.Body, "\n", "\r\n"),
	))
}

// LogSender discards mail. It is used when SMTP is not configured.
type LogSender struct {
	Log func(msg string, args ...any)
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if s.Log != nil {
		s.Log("email suppressed (smtp not configured)", "to", msg.To, "subject", msg.Subject)
	}
	return nil
}
