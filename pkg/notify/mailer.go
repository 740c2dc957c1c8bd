package notify

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/uplook/uplook/pkg/log"
)

// ErrNotConfigured is returned by Send before SMTP settings are loaded.
var ErrNotConfigured = errors.New("email is not configured")

// Settings holds the SMTP delivery configuration.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	FromName string
}

func (s Settings) valid() bool {
	return s.Host != "" && s.Port > 0 && s.Username != ""
}

// Mailer delivers notification emails over SMTP. It is safe for concurrent
// use and can be reconfigured at runtime.
type Mailer struct {
	mu         sync.RWMutex
	settings   Settings
	configured bool
	logger     zerolog.Logger

	// sendFunc is swapped out in tests.
	sendFunc func(settings Settings, to []string, msg []byte) error
}

// NewMailer creates an unconfigured mailer. Call Configure before sending.
func NewMailer() *Mailer {
	return &Mailer{
		logger:   log.WithComponent("notify"),
		sendFunc: sendSMTP,
	}
}

// NewMailerWithTransport creates a mailer that delivers through the given
// transport instead of a real SMTP session.
func NewMailerWithTransport(transport func(settings Settings, to []string, msg []byte) error) *Mailer {
	m := NewMailer()
	m.sendFunc = transport
	return m
}

// Configure installs new SMTP settings, replacing any previous ones.
func (m *Mailer) Configure(settings Settings) error {
	if !settings.valid() {
		return fmt.Errorf("email settings require host, port, and username")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.configured = true
	m.logger.Info().Str("host", settings.Host).Int("port", settings.Port).Msg("Email configured")
	return nil
}

// Configured reports whether SMTP settings have been loaded.
func (m *Mailer) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

// Send delivers an HTML email to the given recipients.
func (m *Mailer) Send(to []string, subject, htmlBody string) error {
	m.mu.RLock()
	settings := m.settings
	configured := m.configured
	m.mu.RUnlock()

	if !configured {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := settings.Username
	if settings.FromName != "" {
		from = fmt.Sprintf("%s <%s>", settings.FromName, settings.Username)
	}
	msg := buildMessage(from, to, subject, htmlBody)

	if err := m.sendFunc(settings, to, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Info().Strs("to", to).Str("subject", subject).Msg("Email sent")
	return nil
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

func sendSMTP(settings Settings, to []string, msg []byte) error {
	addr := net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))

	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if settings.UseTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: settings.Host}); err != nil {
				return err
			}
		}
	}

	if settings.Password != "" {
		if ok, mechs := c.Extension("AUTH"); ok {
			var auth smtp.Auth
			switch {
			case strings.Contains(mechs, "PLAIN"):
				auth = smtp.PlainAuth("", settings.Username, settings.Password, settings.Host)
			case strings.Contains(mechs, "LOGIN"):
				auth = &loginAuth{username: settings.Username, password: settings.Password}
			}
			if auth != nil {
				if err := c.Auth(auth); err != nil {
					return err
				}
			}
		}
	}

	if err := c.Mail(settings.Username); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// loginAuth implements the AUTH LOGIN mechanism, which some providers
// (notably Office 365) offer instead of PLAIN.
type loginAuth struct {
	username, password string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch strings.TrimSpace(strings.ToLower(string(fromServer))) {
	case "username:":
		return []byte(a.username), nil
	case "password:":
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected server challenge: %q", fromServer)
	}
}
