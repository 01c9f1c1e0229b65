package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/store/memory"
	"leadcrm/worker"
)

func TestCreateCampaignSnapshotsAudience(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "a@example.com", Tags: []string{"vip"}})

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{
		Name: "Spring", Subject: "Hello", HTMLContent: "<p>hi</p>", TargetTags: []string{"vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, c.Status)
	assert.Equal(t, 1, c.TotalRecipients)

	// the snapshot does not follow later contacts
	f.contact(t, ContactInput{Email: "b@example.com", Tags: []string{"vip"}})
	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalRecipients)

	t.Run("scheduled at creation", func(t *testing.T) {
		at := t0.Add(time.Hour)
		c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{
			Name: "Later", Subject: "Hello", HTMLContent: "<p>hi</p>", ScheduledAt: &at,
		})
		require.NoError(t, err)
		assert.Equal(t, models.CampaignStatusScheduled, c.Status)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{Name: "No subject"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestSendCampaign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	ana := f.contact(t, ContactInput{Email: "ana@example.com", Company: "Acme", Tags: []string{"a"}})
	bob := f.contact(t, ContactInput{FirstName: "Bob", Email: "bob@example.com", Tags: []string{"a"}})
	f.contact(t, ContactInput{Email: "skip@example.com", Tags: []string{"a", "b"}})
	f.mailer.fail["bob@example.com"] = true

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{
		Name:        "Launch",
		Subject:     "Hi {{first_name}}",
		HTMLContent: "<p>Hi {{first_name}}, from {{company}}</p>",
		TargetTags:  []string{"a"},
		ExcludeTags: []string{"b"},
	})
	require.NoError(t, err)

	d, err := f.svc.Campaigns.SendCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.RecipientCount)
	require.NoError(t, d.Task.Wait(ctx))
	assert.Equal(t, worker.TaskSucceeded, d.Task.Snapshot().Status)

	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, 2, got.EmailsSent)
	assert.Equal(t, 1, got.EmailsDelivered)
	assert.Equal(t, 1, got.EmailsFailed)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi Ana", sent[0].Subject)
	assert.Equal(t, "<p>Hi Ana, from Acme</p>", sent[0].HTML)

	history, err := f.svc.CRM.ListInteractions(ctx, ana.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.InteractionEmailSent, history[0].Type)
	assert.Equal(t, "Campaign email sent: Launch", history[0].Description)
	assert.Equal(t, c.ID, history[0].Metadata["campaign_id"])

	history, err = f.svc.CRM.ListInteractions(ctx, bob.ID, 0)
	require.NoError(t, err)
	for _, i := range history {
		assert.NotEqual(t, models.InteractionEmailSent, i.Type)
	}

	t.Run("sending again is an invalid transition", func(t *testing.T) {
		_, err := f.svc.Campaigns.SendCampaign(ctx, c.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		again, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, got, again)
	})

	t.Run("sent campaigns cannot be edited", func(t *testing.T) {
		name := "Renamed"
		_, err := f.svc.Campaigns.UpdateCampaign(ctx, c.ID, CampaignUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrCampaignLocked)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := f.svc.Campaigns.CampaignStats(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, stats.DeliveryRate)
		assert.Equal(t, 0.0, stats.OpenRate)
	})
}

func TestSendCampaignEmptyAudience(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "a@example.com"})

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{
		Name: "Nobody", Subject: "x", HTMLContent: "x", TargetTags: []string{"ghost"},
	})
	require.NoError(t, err)

	_, err = f.svc.Campaigns.SendCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, ErrEmptyAudience)

	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, got.Status)
	assert.Nil(t, got.SentAt)

	_, err = f.svc.Campaigns.SendCampaign(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingDeliveryStore struct {
	*memory.Store
}

func (failingDeliveryStore) SetCampaignDelivery(context.Context, string, int, int) error {
	return errors.New("write failed")
}

func TestSendCampaignRollsBackOnDispatchFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "a@example.com"})
	f.svc.Campaigns.Store = failingDeliveryStore{f.store}

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{Name: "Boom", Subject: "x", HTMLContent: "x"})
	require.NoError(t, err)

	d, err := f.svc.Campaigns.SendCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Error(t, d.Task.Wait(ctx))
	assert.Equal(t, worker.TaskFailed, d.Task.Snapshot().Status)

	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, got.Status)
}

func TestSendCampaignRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "a@example.com"})
	f.mailer.panicOn["a@example.com"] = true

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{Name: "Panic", Subject: "x", HTMLContent: "x"})
	require.NoError(t, err)

	d, err := f.svc.Campaigns.SendCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.ErrorContains(t, d.Task.Wait(ctx), "panicked")

	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusDraft, got.Status)
}

func TestScheduledCampaigns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "a@example.com"})

	c, err := f.svc.Campaigns.CreateCampaign(ctx, CampaignInput{Name: "Timed", Subject: "x", HTMLContent: "x"})
	require.NoError(t, err)

	_, err = f.svc.Campaigns.ScheduleCampaign(ctx, c.ID, t0.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrInvalidInput)

	scheduled, err := f.svc.Campaigns.ScheduleCampaign(ctx, c.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusScheduled, scheduled.Status)

	n, err := f.svc.Campaigns.SendDueScheduledCampaigns(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(2 * time.Hour)
	n, err = f.svc.Campaigns.SendDueScheduledCampaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSent, got.Status)

	_, err = f.svc.Campaigns.ScheduleCampaign(ctx, c.ID, t0.Add(5*time.Hour))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
