package mail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/ferme-mv/pahou/internal/config"
)

// ErrNoRecipients is returned for messages without a To address.
var ErrNoRecipients = errors.New("mail: message has no recipients")

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the Sender selected by settings. Console output goes to out.
func New(settings config.EmailSettings, out io.Writer) (Sender, error) {
	switch settings.Backend {
	case config.EmailBackendConsole:
		return NewConsoleSender(out, settings.DefaultFromEmail), nil
	case config.EmailBackendMemory:
		return NewMemorySender(settings.DefaultFromEmail), nil
	case config.EmailBackendSMTP:
		return NewSMTPSender(settings), nil
	default:
		return nil, fmt.Errorf("mail: unsupported backend %q", settings.Backend)
	}
}

func prepare(msg Message, defaultFrom string) (Message, error) {
	if len(msg.To) == 0 {
		return Message{}, ErrNoRecipients
	}
	if msg.From == "" {
		msg.From = defaultFrom
	}
	for _, addr := range append([]string{msg.From}, msg.To...) {
		if strings.ContainsAny(addr, "\r\n") {
			return Message{}, fmt.Errorf("mail: invalid address %q", addr)
		}
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return Message{}, errors.New("mail: subject contains a line break")
	}
	return msg, nil
}

// format renders msg as an RFC 5322 message with CRLF line endings.
func format(msg Message, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ConsoleSender writes messages to a writer instead of sending them.
type ConsoleSender struct {
	mu          sync.Mutex
	out         io.Writer
	defaultFrom string
	now         func() time.Time
}

// NewConsoleSender returns a ConsoleSender writing to out.
func NewConsoleSender(out io.Writer, defaultFrom string) *ConsoleSender {
	return &ConsoleSender{out: out, defaultFrom: defaultFrom, now: time.Now}
}

// Send writes msg followed by a separator line.
func (c *ConsoleSender) Send(_ context.Context, msg Message) error {
	msg, err := prepare(msg, c.defaultFrom)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(format(msg, c.now())); err != nil {
		return fmt.Errorf("mail: write console message: %w", err)
	}
	if _, err := io.WriteString(c.out, strings.Repeat("-", 79)+"\n"); err != nil {
		return fmt.Errorf("mail: write console message: %w", err)
	}
	return nil
}

// MemorySender keeps sent messages in an outbox.
type MemorySender struct {
	mu          sync.Mutex
	outbox      []Message
	defaultFrom string
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender(defaultFrom string) *MemorySender {
	return &MemorySender{defaultFrom: defaultFrom}
}

// Send appends msg to the outbox.
func (m *MemorySender) Send(_ context.Context, msg Message) error {
	msg, err := prepare(msg, m.defaultFrom)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()
	return nil
}

// Outbox returns a copy of the sent messages.
func (m *MemorySender) Outbox() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.outbox...)
}
