package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"buildsite/pkg/logger"
	"buildsite/pkg/validate"
)

// ErrInvalidMessage is returned for contact messages that fail validation
var ErrInvalidMessage = errors.New("invalid contact message")

// ContactMessage is a submission from the public contact form
type ContactMessage struct {
	Name    string `json:"name" validate:"required,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Company string `json:"company,omitempty" validate:"omitempty,max=120"`
	Subject string `json:"subject,omitempty" validate:"omitempty,max=200"`
	Message string `json:"message" validate:"required,min=10,max=5000"`

	// ReceivedAt is stamped by the server, not the client
	ReceivedAt time.Time `json:"-"`
	RequestID  string    `json:"-"`
}

// Normalize trims surrounding whitespace from every field
func (m *ContactMessage) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Phone = strings.TrimSpace(m.Phone)
	m.Company = strings.TrimSpace(m.Company)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Message = strings.TrimSpace(m.Message)
}

// Validate normalizes m and checks it. The returned error wraps both
// ErrInvalidMessage and the *validate.Error with per-field details.
func (m *ContactMessage) Validate(v *validate.Validator) error {
	m.Normalize()
	if err := v.Validate(m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if strings.ContainsAny(m.Name+m.Email+m.Subject, "\r\n") {
		return fmt.Errorf("%w: header fields must be single line", ErrInvalidMessage)
	}
	return nil
}

// Mailer delivers contact messages
type Mailer interface {
	Send(ctx context.Context, msg *ContactMessage) error
}

// LogMailer logs messages instead of sending them. It is the development
// driver.
type LogMailer struct {
	logger logger.Logger
}

// NewLogMailer creates a mailer that only logs
func NewLogMailer(log logger.Logger) *LogMailer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogMailer{logger: log.WithField("component", "mail")}
}

// Send logs the message
func (m *LogMailer) Send(ctx context.Context, msg *ContactMessage) error {
	m.logger.InfoWithFields("contact message received", map[string]interface{}{
		"name":       msg.Name,
		"email":      msg.Email,
		"subject":    subjectFor(msg),
		"length":     len(msg.Message),
		"request_id": msg.RequestID,
	})
	return nil
}

func subjectFor(msg *ContactMessage) string {
	if msg.Subject != "" {
		return "[Website] " + msg.Subject
	}
	return "[Website] Message from " + msg.Name
}
