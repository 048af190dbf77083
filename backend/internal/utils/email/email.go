package email

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parley-dev/parley/shared/config"
	"github.com/parley-dev/parley/shared/domain"
	internal_errors "github.com/parley-dev/parley/shared/errors"
	"github.com/parley-dev/parley/shared/logger"
)

const (
	defaultTimeout  = 10 * time.Second
	implicitTLSPort = 465
)

// Email delivers plain text mail (password reset links) over SMTP.
type Email struct {
	config *config.Email
	auth   smtp.Auth
	now    func() time.Time
}

func New(config *config.Email) *Email {
	return &Email{
		config: config,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.SMTPServer),
		now:    time.Now,
	}
}

// IsCorrect accepts a bare address only, display names are rejected.
func (e *Email) IsCorrect(email domain.Email) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return internal_errors.BadRequest("Invalid email")
	}
	return nil
}

func (e *Email) Send(recipientEmail, subject, body string) error {
	if err := e.deliver(recipientEmail, e.buildMessage(recipientEmail, subject, body)); err != nil {
		logger.Log.Error("email delivery failed", "server", e.config.SMTPServer, "recipient", recipientEmail, "error", err)
		return err
	}
	return nil
}

func (e *Email) deliver(recipient string, msg []byte) error {
	client, err := e.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Auth(e.auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(e.config.Username); err != nil {
		return fmt.Errorf("smtp sender: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp recipient: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return client.Quit()
}

// dial opens an authenticated-ready client: implicit TLS on 465, STARTTLS otherwise.
func (e *Email) dial() (*smtp.Client, error) {
	address := net.JoinHostPort(e.config.SMTPServer, fmt.Sprint(e.config.SMTPPort))
	dialer := &net.Dialer{Timeout: e.timeout()}
	tlsConfig := &tls.Config{ServerName: e.config.SMTPServer}

	var conn net.Conn
	var err error
	if e.config.SMTPPort == implicitTLSPort {
		conn, err = tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", address)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp connect %s: %w", address, err)
	}
	conn.SetDeadline(e.now().Add(e.timeout()))

	client, err := smtp.NewClient(conn, e.config.SMTPServer)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if e.config.SMTPPort != implicitTLSPort {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

func (e *Email) timeout() time.Duration {
	if e.config.Timeout <= 0 {
		return defaultTimeout
	}
	return time.Duration(e.config.Timeout) * time.Second
}

// senderHost is the domain part of the SMTP username, falling back to the server name.
func (e *Email) senderHost() string {
	if _, host, ok := strings.Cut(e.config.Username, "@"); ok && host != "" {
		return host
	}
	return e.config.SMTPServer
}

func (e *Email) buildMessage(recipient, subject, body string) []byte {
	var b strings.Builder
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), e.senderHost()))
	header("Date", e.now().Format(time.RFC1123Z))
	header("To", recipient)
	header("From", fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", e.config.SenderName), e.config.Username))
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="utf-8"`)
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
