package notify

import (
	"bytes"
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
)

// EmailConfig is the SMTP account notifications are sent through.
type EmailConfig struct {
	Server   string
	Port     int
	User     string
	Password string
	From     string // defaults to User
	To       []string
	Location *time.Location // Date header zone, UTC when nil
}

// ErrIncompleteEmail is returned when server, credentials or recipients are missing.
var ErrIncompleteEmail = errors.New("email configuration incomplete")

// Email sends plain text mail over SMTP, upgrading to TLS with STARTTLS
// when the server offers it and authenticating with PLAIN.
type Email struct {
	cfg  EmailConfig
	now  func() time.Time
	tls  *tls.Config
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewEmail(cfg EmailConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	d := &net.Dialer{}
	return &Email{
		cfg:  cfg,
		now:  time.Now,
		tls:  &tls.Config{ServerName: cfg.Server, MinVersion: tls.VersionTLS12},
		dial: d.DialContext,
	}
}

// ParseRecipients splits a comma or semicolon separated address list.
func ParseRecipients(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *Email) Notify(ctx context.Context, subject, body string) error {
	c := e.cfg
	if c.Server == "" || c.User == "" || c.Password == "" || len(c.To) == 0 {
		return ErrIncompleteEmail
	}

	addr := net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
	conn, err := e.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	// unblock the client if ctx ends without a deadline
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	client, err := smtp.NewClient(conn, c.Server)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(e.tls); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(smtp.PlainAuth("", c.User, c.Password, c.Server)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(c.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, to := range c.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(e.message(subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	return client.Quit()
}

func (e *Email) message(subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().In(e.cfg.Location).Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}
