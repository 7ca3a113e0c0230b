package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPSender struct {
	Addr string // host:port
	From string
	Auth smtp.Auth // nil utk relay internal tanpa auth
}

func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	return smtp.SendMail(s.Addr, s.Auth, s.From, []string{to}, []byte(msg.String()))
}
