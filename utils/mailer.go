package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/gomail.v2"
)

// ErrMailerNotConfigured is reported in SendResult.Error when no SMTP host is set
var ErrMailerNotConfigured = errors.New("smtp not configured")

// Message is a rendered email ready for delivery
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// SendResult reports the outcome for one recipient. Transport failures are
// carried here rather than returned as errors.
type SendResult struct {
	To        string    `json:"to"`
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Mailer delivers email
type Mailer interface {
	Send(ctx context.Context, msg Message) SendResult
	// SendBulk returns one result per message, in order. progress, when
	// non-nil, is called after each batch.
	SendBulk(ctx context.Context, msgs []Message, progress func(done, total int)) []SendResult
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	FromEmail  string
	FromName   string
	BatchSize  int
	BatchPause time.Duration
}

// SMTPMailer sends through an SMTP relay with gomail
type SMTPMailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	logger *logrus.Entry
}

var _ Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	m := &SMTPMailer{
		cfg:    cfg,
		logger: GetLogger("mailer").WithField("component", "smtp"),
	}
	if cfg.Host != "" {
		m.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	} else {
		m.logger.Warn("SMTP_HOST is not set, outbound email is disabled")
	}
	return m
}

func (m *SMTPMailer) Configured() bool {
	return m.dialer != nil
}

func (m *SMTPMailer) messageID() string {
	domain := "localhost"
	if at := strings.LastIndex(m.cfg.FromEmail, "@"); at >= 0 && at < len(m.cfg.FromEmail)-1 {
		domain = m.cfg.FromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) SendResult {
	result := SendResult{To: msg.To, Timestamp: time.Now().UTC()}
	if m.dialer == nil {
		result.Error = ErrMailerNotConfigured.Error()
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	id := m.messageID()
	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	if msg.ToName != "" {
		gm.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		gm.SetHeader("To", msg.To)
	}
	gm.SetHeader("Subject", msg.Subject)
	gm.SetHeader("Message-ID", id)
	if msg.Text != "" {
		gm.SetBody("text/plain", msg.Text)
		gm.AddAlternative("text/html", msg.HTML)
	} else {
		gm.SetBody("text/html", msg.HTML)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		m.logger.WithFields(logrus.Fields{"to": msg.To, "error": err}).Error("Failed to send email")
		result.Error = err.Error()
		return result
	}

	m.logger.WithField("to", msg.To).Debug("Email sent")
	result.Success = true
	result.MessageID = id
	return result
}

func (m *SMTPMailer) SendBulk(ctx context.Context, msgs []Message, progress func(done, total int)) []SendResult {
	return SendInBatches(ctx, msgs, m.cfg.BatchSize, m.cfg.BatchPause, m.Send, progress)
}

// SendInBatches sends msgs concurrently within each batch and pauses between
// batches. Once ctx is done the remaining messages are reported as failed.
func SendInBatches(
	ctx context.Context,
	msgs []Message,
	batchSize int,
	pause time.Duration,
	send func(context.Context, Message) SendResult,
	progress func(done, total int),
) []SendResult {
	if batchSize <= 0 {
		batchSize = len(msgs)
	}
	results := make([]SendResult, len(msgs))
	for start := 0; start < len(msgs); start += batchSize {
		end := min(start+batchSize, len(msgs))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(msgs); i++ {
				results[i] = SendResult{To: msgs[i].To, Error: err.Error(), Timestamp: time.Now().UTC()}
			}
			return results
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i // per-iteration copy; module targets go 1.21 loop semantics
			g.Go(func() error {
				results[i] = send(gctx, msgs[i])
				return nil
			})
		}
		_ = g.Wait()

		if progress != nil {
			progress(end, len(msgs))
		}

		if end < len(msgs) && pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pause):
			}
		}
	}
	return results
}
