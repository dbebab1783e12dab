package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
)

// SMTPMailer implements the Mailer transport collaborator over plain SMTP.
// Authentication rejections from the server are classified permanent so the
// consumer does not burn its retry budget on bad credentials.
type SMTPMailer struct {
	Addr     string // host:port
	Username string
	Password string
}

func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	payload := buildRFC822(msg)

	var auth smtp.Auth
	if m.Username != "" {
		host := m.Addr
		if h, _, err := net.SplitHostPort(m.Addr); err == nil {
			host = h
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}

	// smtp.SendMail has no context support; run it aside and race the ctx so
	// a hung transport cannot outlive the message reservation.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.Addr, auth, msg.From, []string{msg.To}, payload)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err == nil {
			return nil
		}
		if isAuthRejection(err) {
			return &PermanentMailError{Err: err}
		}
		return err
	}
}

func buildRFC822(msg MailMessage) []byte {
	contentType := "text/plain; charset=UTF-8"
	if msg.HTML {
		contentType = "text/html; charset=UTF-8"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	if !msg.SentAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\r\n", msg.SentAt.UTC().Format("Mon, 02 Jan 2006 15:04:05 -0700"))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// isAuthRejection recognizes SMTP auth/policy replies that no retry can fix.
func isAuthRejection(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535, 538:
			return true
		}
	}
	return false
}
