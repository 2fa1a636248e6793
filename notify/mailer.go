package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/cppla/dailyink/config"
)

// ErrNoRecipient means the user has no email on file.
var ErrNoRecipient = errors.New("no recipient address")

// Mailer sends unlock events as plain text email.
type Mailer struct {
	cfg config.SMTPSection
}

func NewMailer(cfg config.SMTPSection) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp not configured")
	}
	return &Mailer{cfg: cfg}, nil
}

func (m *Mailer) FeedbackUnlocked(ctx context.Context, ev Event) error {
	if ev.Email == "" {
		return ErrNoRecipient
	}
	subject := "Your feedback is ready"
	body := fmt.Sprintf("You gave enough feedback today, so the %d notes on your %s entry from %s are now visible.\r\n",
		ev.FeedbackCount, ev.Category, ev.LocalDay)
	return m.Send(ctx, ev.Email, subject, body)
}

// Send delivers one message, using STARTTLS when configured.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	fromName := m.cfg.FromName
	if fromName == "" {
		fromName = "DailyInk"
	}
	headers := []string{
		"From: " + fmt.Sprintf("%s <%s>", mime.BEncoding.Encode("UTF-8", fromName), m.cfg.From),
		"To: " + to,
		"Subject: " + mime.BEncoding.Encode("UTF-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(h)
		msg.WriteString("\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if !m.cfg.TLS {
		// Plain SMTP without TLS (not recommended)
		return smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg.String()))
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(15 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write([]byte(msg.String())); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}
