package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"buildsite/pkg/logger"
	"buildsite/pkg/retry"
)

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPConfig holds the relay settings
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	To          []string
	MaxAttempts int
	// RetryDelay, when set, replaces exponential backoff with a fixed pause
	RetryDelay time.Duration
}

// SMTPMailer sends contact messages through an SMTP relay
type SMTPMailer struct {
	cfg    SMTPConfig
	send   SendFunc
	retry  *retry.Config
	logger logger.Logger
}

// NewSMTPMailer creates a mailer for the relay in cfg
func NewSMTPMailer(cfg SMTPConfig, log logger.Logger) *SMTPMailer {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "mail")

	retryCfg := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryDelay > 0 {
		retryCfg.Backoff = &retry.ConstantBackoff{Delay: cfg.RetryDelay}
	}
	retryCfg.Logger = log
	retryCfg.RetryIf = retryableSMTPError

	return &SMTPMailer{
		cfg:    cfg,
		send:   smtp.SendMail,
		retry:  retryCfg,
		logger: log,
	}
}

// Send delivers msg, retrying transient relay failures
func (m *SMTPMailer) Send(ctx context.Context, msg *ContactMessage) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	body := m.compose(msg)

	err := retry.Do(ctx, func(ctx context.Context) error {
		return m.send(addr, auth, m.cfg.From, m.cfg.To, body)
	}, m.retry)
	if err != nil {
		m.logger.ErrorWithFields("failed to send contact message", map[string]interface{}{
			"relay":      addr,
			"request_id": msg.RequestID,
			"error":      err.Error(),
		})
		return fmt.Errorf("failed to send contact message: %w", err)
	}

	m.logger.InfoWithFields("contact message sent", map[string]interface{}{
		"relay":      addr,
		"recipients": len(m.cfg.To),
		"request_id": msg.RequestID,
	})
	return nil
}

// compose renders a plain-text RFC 5322 message
func (m *SMTPMailer) compose(msg *ContactMessage) []byte {
	received := msg.ReceivedAt
	if received.IsZero() {
		received = time.Now()
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	for _, to := range m.cfg.To {
		fmt.Fprintf(&buf, "To: %s\r\n", to)
	}
	fmt.Fprintf(&buf, "Reply-To: %s <%s>\r\n", msg.Name, msg.Email)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subjectFor(msg))
	fmt.Fprintf(&buf, "Date: %s\r\n", received.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "Name: %s\r\n", msg.Name)
	fmt.Fprintf(&buf, "Email: %s\r\n", msg.Email)
	if msg.Phone != "" {
		fmt.Fprintf(&buf, "Phone: %s\r\n", msg.Phone)
	}
	if msg.Company != "" {
		fmt.Fprintf(&buf, "Company: %s\r\n", msg.Company)
	}
	buf.WriteString("\r\n")
	buf.WriteString(msg.Message)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// retryableSMTPError retries everything except permanent 5xx replies from the
// relay, such as a rejected recipient or failed authentication
func retryableSMTPError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code < 500
	}
	return retry.DefaultRetryIf(err)
}
