package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
)

// SMTPConfig はメール送信に使うSMTPサーバーの設定。
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	// TLS がtrueの場合は暗黙TLS（465番）、falseの場合はSTARTTLSで接続する。
	TLS bool
}

// configured は送信に必要な項目が揃っているかを返す。
func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// sendFunc は組み立て済みのメッセージをSMTPで送信する関数。
type sendFunc func(ctx context.Context, cfg SMTPConfig, to string, body []byte) error

// EmailSink はHTMLメールを送るSink。recipientは宛先メールアドレス。
type EmailSink struct {
	cfg  SMTPConfig
	send sendFunc
	now  func() time.Time
}

// NewEmailSink はEmailSinkを生成する。
func NewEmailSink(cfg SMTPConfig) *EmailSink {
	return &EmailSink{
		cfg:  cfg,
		send: sendSMTP,
		now:  time.Now,
	}
}

// Name はチャネル名を返す。
func (s *EmailSink) Name() string {
	return ChannelEmail
}

// Deliver はmsg.Subjectを件名、msg.HTMLを本文とするメールを送信する。
func (s *EmailSink) Deliver(ctx context.Context, recipient string, msg Message) error {
	if !s.cfg.configured() {
		return ErrNotConfigured
	}
	if recipient == "" {
		return fmt.Errorf("empty email recipient")
	}

	body, err := s.compose(recipient, msg)
	if err != nil {
		return fmt.Errorf("failed to compose email: %w", err)
	}

	if err := s.send(ctx, s.cfg, recipient, body); err != nil {
		return err
	}
	return nil
}

// compose はRFC 5322形式のHTMLメールを組み立てる。
func (s *EmailSink) compose(to string, msg Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, msg.HTML); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendSMTP は設定に応じて暗黙TLSまたはSTARTTLSで送信する。
func sendSMTP(ctx context.Context, cfg SMTPConfig, to string, body []byte) error {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if cfg.TLS {
		d := &tls.Dialer{NetDialer: &net.Dialer{Timeout: 30 * time.Second}, Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		d := &net.Dialer{Timeout: 30 * time.Second}
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if !cfg.TLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
