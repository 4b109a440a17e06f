// Package mailer delivers outbound email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/taskflow/internal/model"
)

// ErrNotConfigured is returned by Send when no SMTP host is configured.
var ErrNotConfigured = errors.New("mailer: SMTP not configured")

const defaultTimeout = 15 * time.Second

// Message is one outbound email. Text and HTML are alternative renderings
// of the same body; either may be empty.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender returns an SMTP sender for cfg, or a sender that always fails
// with ErrNotConfigured when cfg has no host.
func NewSender(cfg model.SMTPConfig, logger *slog.Logger) Sender {
	if cfg.Host == "" {
		return disabledSender{logger: logger}
	}
	return NewSMTPSender(cfg, logger)
}

type disabledSender struct {
	logger *slog.Logger
}

func (d disabledSender) Send(_ context.Context, msg Message) error {
	d.logger.Warn("email not sent, SMTP not configured", "to", msg.To, "subject", msg.Subject)
	return ErrNotConfigured
}

// SMTPSender sends mail through an authenticated SMTP server, either over
// implicit TLS or upgraded with STARTTLS.
type SMTPSender struct {
	cfg     model.SMTPConfig
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg model.SMTPConfig, logger *slog.Logger) *SMTPSender {
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}
	return &SMTPSender{cfg: cfg, timeout: timeout, logger: logger, now: time.Now}
}

// from returns the envelope sender, falling back to the login name.
func (s *SMTPSender) from() string {
	if s.cfg.From != "" {
		return s.cfg.From
	}
	return s.cfg.Username
}

// Send composes msg and delivers it. The whole exchange is bounded by the
// configured timeout and by ctx.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	body, err := Compose(s.from(), msg, s.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	from, err := mail.ParseAddress(s.from())
	if err != nil {
		return fmt.Errorf("parsing sender address: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parsing recipient address: %w", err)
	}

	if s.cfg.TLS {
		err = s.sendWithTLS(ctx, from.Address, to.Address, body)
	} else {
		err = s.sendWithStartTLS(ctx, from.Address, to.Address, body)
	}
	if err != nil {
		return err
	}

	s.logger.Info("email sent", "to", to.Address, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, s.cfg.Port)
}

// dial opens a TCP connection whose deadline follows ctx.
func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return nil, fmt.Errorf("dial to %s: %w", s.addr(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

// sendWithTLS sends over an implicit TLS connection.
func (s *SMTPSender) sendWithTLS(ctx context.Context, from, to string, body []byte) error {
	raw, err := s.dial(ctx)
	if err != nil {
		return err
	}

	conn := tls.Client(raw, &tls.Config{ServerName: s.cfg.Host})
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return fmt.Errorf("TLS handshake with %s: %w", s.addr(), err)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if err := s.auth(client); err != nil {
		return err
	}
	return deliver(client, from, to, body)
}

// sendWithStartTLS sends over a plain connection upgraded with STARTTLS.
func (s *SMTPSender) sendWithStartTLS(ctx context.Context, from, to string, body []byte) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
		return fmt.Errorf("SMTP STARTTLS: %w", err)
	}

	if err := s.auth(client); err != nil {
		return err
	}
	return deliver(client, from, to, body)
}

func (s *SMTPSender) auth(client *smtp.Client) error {
	if s.cfg.Username == "" {
		return nil
	}
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP auth: %w", err)
	}
	return nil
}

// deliver runs the MAIL/RCPT/DATA exchange on an authenticated client.
func deliver(client *smtp.Client, from, to string, body []byte) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}

// Compose renders msg as an RFC 5322 message whose body is a
// multipart/alternative section, plain text first.
func Compose(from string, msg Message, date time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parsing sender address: %w", err)
	}
	toAddr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("parsing recipient address: %w", err)
	}

	var header mail.Header
	header.SetDate(date)
	header.SetAddressList("From", []*mail.Address{fromAddr})
	header.SetAddressList("To", []*mail.Address{toAddr})
	header.SetSubject(msg.Subject)
	if err := header.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	writer, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	inline, err := writer.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline body: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, part := range parts {
		if part.body == "" {
			continue
		}
		if err := writePart(inline, part.contentType, part.body); err != nil {
			return nil, err
		}
	}

	if err := inline.Close(); err != nil {
		return nil, fmt.Errorf("closing inline body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

func writePart(inline *mail.InlineWriter, contentType, body string) error {
	var header mail.InlineHeader
	header.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	header.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := inline.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return w.Close()
}
