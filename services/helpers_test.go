package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/store/memory"
	"leadcrm/utils"
	"leadcrm/worker"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingMailer keeps every message and fails or panics for chosen addresses
type recordingMailer struct {
	mu      sync.Mutex
	sent    []utils.Message
	fail    map[string]bool
	panicOn map[string]bool
	n       int
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{fail: map[string]bool{}, panicOn: map[string]bool{}}
}

func (m *recordingMailer) Send(_ context.Context, msg utils.Message) utils.SendResult {
	if m.panicOn[msg.To] {
		panic("transport exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[msg.To] {
		return utils.SendResult{To: msg.To, Error: "mailbox unavailable", Timestamp: t0}
	}
	m.n++
	m.sent = append(m.sent, msg)
	return utils.SendResult{To: msg.To, Success: true, MessageID: fmt.Sprintf("<msg-%d@test>", m.n), Timestamp: t0}
}

func (m *recordingMailer) SendBulk(ctx context.Context, msgs []utils.Message, progress func(done, total int)) []utils.SendResult {
	out := make([]utils.SendResult, len(msgs))
	for i, msg := range msgs {
		out[i] = m.Send(ctx, msg)
	}
	if progress != nil {
		progress(len(msgs), len(msgs))
	}
	return out
}

func (m *recordingMailer) Sent() []utils.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Message(nil), m.sent...)
}

type fixture struct {
	svc    *Services
	store  *memory.Store
	mailer *recordingMailer
	clock  *clock
}

func newFixture(t *testing.T, welcome bool) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		mailer: newRecordingMailer(),
		clock:  &clock{now: t0},
	}
	f.svc = New(Options{
		Store:            f.store,
		Mailer:           f.mailer,
		Tasks:            worker.InlineRunner{},
		Now:              f.clock.Now,
		SendWelcomeEmail: welcome,
		UnsubscribeURL:   "https://example.com/unsubscribe",
	})
	return f
}

func (f *fixture) contact(t *testing.T, in ContactInput) *models.Contact {
	t.Helper()
	if in.FirstName == "" {
		in.FirstName = "Ana"
	}
	if in.LastName == "" {
		in.LastName = "Lopez"
	}
	c, err := f.svc.CRM.CreateContact(context.Background(), in)
	require.NoError(t, err)
	return c
}

func (f *fixture) sequence(t *testing.T, in SequenceInput) *models.EmailSequence {
	t.Helper()
	if in.Name == "" {
		in.Name = "Nurture"
	}
	seq, err := f.svc.Sequences.CreateSequence(context.Background(), in)
	require.NoError(t, err)
	return seq
}

func step(subject string, delay *int) models.SequenceStep {
	return models.SequenceStep{Subject: subject, HTMLContent: "<p>Hi {{first_name}}</p>", DelayHours: delay}
}
