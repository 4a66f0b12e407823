package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ResetSubject is the subject line of reset emails.
const ResetSubject = "Prescient - Reset Password Request"

var resetTemplate = template.Must(template.New("reset").Parse(`<html>
  <body style="font-family: Arial, sans-serif; padding: 20px;">
    <h1>Prescient Password Reset</h1>
    <p>Anda menerima email ini karena ada permintaan reset password untuk akun Prescient Anda.</p>
    <p><a href="{{.Link}}">RESET PASSWORD</a></p>
    <p>Atau copy link berikut ke browser Anda:<br><code>{{.Link}}</code></p>
    <p>Link ini akan kadaluarsa dalam {{.TTL}}.<br>Jika Anda tidak meminta reset password, abaikan email ini.</p>
    <p>Best regards,<br><strong>Prescient Team</strong></p>
  </body>
</html>
`))

var errHeaderInjection = errors.New("address contains line break")

// ErrStartTLSUnavailable is returned when the server does not offer STARTTLS
// and plaintext delivery is not allowed.
var ErrStartTLSUnavailable = errors.New("smtp server does not offer STARTTLS")

// SMTPConfig содержит параметры SMTP сервера
type SMTPConfig struct {
	Host     string
	Username string
	Password string
	From     string
	Port     int
	// LinkTTL выводится в тексте письма
	LinkTTL time.Duration
	// Insecure разрешает отправку без STARTTLS (только для локальных relay)
	Insecure bool
}

// SMTPSender sends reset emails through an SMTP server.
// STARTTLS is required unless Insecure is set; PLAIN auth is used when Username is set.
type SMTPSender struct {
	tlsConfig *tls.Config
	dialer    *net.Dialer
	cfg       SMTPConfig
}

// NewSMTPSender creates a new SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:       cfg,
		dialer:    &net.Dialer{Timeout: 10 * time.Second},
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// SendResetEmail delivers the reset link to the recipient.
func (s *SMTPSender) SendResetEmail(ctx context.Context, to, link string) error {
	msg, err := buildResetMessage(s.cfg.From, to, link, s.cfg.LinkTTL)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	// net/smtp не принимает context, поэтому ограничиваем соединение дедлайном
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()

	switch ok, _ := c.Extension("STARTTLS"); {
	case ok:
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	case !s.cfg.Insecure:
		// Письмо содержит действующую ссылку сброса, открытым текстом не отправляем
		return ErrStartTLSUnavailable
	}

	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL failed: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp RCPT failed: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return c.Quit()
}

// buildResetMessage собирает письмо с HTML телом
func buildResetMessage(from, to, link string, ttl time.Duration) ([]byte, error) {
	if strings.ContainsAny(from, "\r\n") || strings.ContainsAny(to, "\r\n") {
		return nil, errHeaderInjection
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	var body bytes.Buffer
	data := struct {
		Link string
		TTL  string
	}{
		Link: link,
		TTL:  humanDuration(ttl),
	}
	if err := resetTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render reset email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", ResetSubject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))

	return msg.Bytes(), nil
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d jam", int(d/time.Hour))
	}
	return fmt.Sprintf("%d menit", int(d/time.Minute))
}
