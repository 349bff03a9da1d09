// Package mail sends transactional mail over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultPort    = 587
	defaultRetries = 3
	maxRetryDelay  = 30 * time.Second
)

// Config implements the mail config.
type Config struct {
	// Enabled turns sending on. Disabled senders drop messages silently.
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	// From is the sender address, FromName its display name.
	From     string `toml:"from"`
	FromName string `toml:"fromName"`

	// Retries is the number of delivery attempts per message.
	Retries int `toml:"retries"`
}

// Message is one mail with a text and an HTML alternative.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Encode renders the message as a multipart/alternative MIME document.
func (m Message) Encode(from string) ([]byte, error) {
	var buf bytes.Buffer

	alt := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n", alt.Boundary())
	fmt.Fprintf(&buf, "\r\n")

	text, err := alt.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}

	if _, err := text.Write([]byte(m.Text)); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}

	html, err := alt.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=utf-8"}})
	if err != nil {
		return nil, fmt.Errorf("failed to create html part: %w", err)
	}

	if _, err := html.Write([]byte(m.HTML)); err != nil {
		return nil, fmt.Errorf("failed to write html part: %w", err)
	}

	if err := alt.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Sender delivers messages over SMTP with retries.
type Sender struct {
	cfg Config
}

// New creates a Sender and applies config defaults.
func New(cfg Config) *Sender {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}

	return &Sender{cfg: cfg}
}

// Send delivers one message. Failed attempts are retried with a growing delay.
// A disabled sender logs and drops the message without error.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Enabled {
		log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail disabled, dropping message")

		return nil
	}

	from := s.cfg.From
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	}

	body, err := msg.Encode(from)
	if err != nil {
		return err
	}

	var lastErr error

	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * time.Second
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			select {
			case <-ctx.Done():
				return ctx.Err() //nolint:wrapcheck
			case <-time.After(delay):
			}
		}

		if lastErr = s.send(msg.To, body); lastErr == nil {
			return nil
		}

		log.Warn().Err(lastErr).Int("attempt", attempt).Str("to", msg.To).Msg("mail delivery attempt failed")
	}

	return fmt.Errorf("failed to send mail after %d attempts: %w", s.cfg.Retries, lastErr)
}

// send performs a single SMTP delivery.
// smtp.SendMail negotiates STARTTLS if the server offers it.
func (s *Sender) send(to string, body []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, body); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}
