package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

func TestCreateContact(t *testing.T) {
	ctx := context.Background()

	t.Run("scores, notes and welcomes a new contact", func(t *testing.T) {
		f := newFixture(t, true)
		c := f.contact(t, ContactInput{
			Email:      "Ana@Example.com",
			Company:    "Acme",
			Position:   "CEO",
			Phone:      "555",
			LeadSource: models.LeadSourceReferral,
		})

		assert.Equal(t, "ana@example.com", c.Email)
		assert.Equal(t, models.ContactStatusNew, c.Status)
		assert.True(t, c.EmailSubscribed)
		// 55 base, +2 each for the creation note and the welcome email types
		assert.Equal(t, 59, c.LeadScore)
		assert.Equal(t, 2, c.TotalInteractions)

		sent := f.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "Welcome to OpsVantage Digital, Ana!", sent[0].Subject)
		assert.Contains(t, sent[0].HTML, "https://example.com/unsubscribe")
		assert.NotContains(t, sent[0].HTML, "{{")

		history, err := f.svc.CRM.ListInteractions(ctx, c.ID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.InteractionEmailSent, history[0].Type)
		assert.Equal(t, "welcome", history[0].Metadata["email_type"])
		assert.Equal(t, models.InteractionNoteAdded, history[1].Type)
		assert.Equal(t, "Contact created from referral", history[1].Description)
	})

	t.Run("defaults source and skips welcome when disabled", func(t *testing.T) {
		f := newFixture(t, false)
		c := f.contact(t, ContactInput{Email: "b@example.com"})
		assert.Equal(t, models.LeadSourceWebsite, c.LeadSource)
		assert.Equal(t, 12, c.LeadScore)
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("no welcome for unsubscribed contacts", func(t *testing.T) {
		f := newFixture(t, true)
		f.contact(t, ContactInput{Email: "c@example.com", EmailSubscribed: utils.Pointer(false)})
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newFixture(t, false)
		f.contact(t, ContactInput{Email: "dup@example.com"})
		_, err := f.svc.CRM.CreateContact(ctx, ContactInput{FirstName: "X", LastName: "Y", Email: "DUP@example.com"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.svc.CRM.CreateContact(ctx, ContactInput{FirstName: "X", LastName: "Y", Email: "not-an-email"})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.svc.CRM.CreateContact(ctx, ContactInput{FirstName: "X", LastName: "Y", Email: "x@example.com", Status: "vip"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRecordInteraction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	c := f.contact(t, ContactInput{Email: "e@example.com", LeadSource: models.LeadSourceOther})
	require.Equal(t, 2, c.LeadScore)

	f.clock.Advance(1)
	_, err := f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: c.ID, Type: models.InteractionEmailOpened})
	require.NoError(t, err)
	_, err = f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: c.ID, Type: models.InteractionEmailClicked})
	require.NoError(t, err)
	_, err = f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: c.ID, Type: models.InteractionWebsiteVisit})
	require.NoError(t, err)

	got, err := f.svc.CRM.GetContact(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EmailOpens)
	assert.Equal(t, 1, got.EmailClicks)
	assert.Equal(t, 1, got.WebsiteVisits)
	assert.Equal(t, 4, got.TotalInteractions)
	require.NotNil(t, got.LastInteractionDate)
	assert.True(t, got.LastInteractionDate.Equal(f.clock.Now()))
	// 2 open + 5 click + 3 visit + 4 types * 2 + 5 recency
	assert.Equal(t, 23, got.LeadScore)

	rows, err := f.svc.CRM.GetContactAnalytics(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2025-03-10", rows[0].Date)
	assert.Equal(t, 1, rows[0].EmailOpens)
	assert.Equal(t, 1, rows[0].EmailClicks)
	assert.Equal(t, 1, rows[0].WebsiteVisits)
	assert.Equal(t, 23, rows[0].ScoreChange)

	t.Run("unknown contact", func(t *testing.T) {
		_, err := f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: "missing", Type: models.InteractionPhoneCall})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: c.ID, Type: "fax"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestUpdateContact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	c := f.contact(t, ContactInput{Email: "u@example.com", LeadSource: models.LeadSourceOther})

	t.Run("status change rescoring and note", func(t *testing.T) {
		got, err := f.svc.CRM.UpdateContact(ctx, c.ID, ContactUpdate{
			Status:  utils.Pointer(models.ContactStatusQualified),
			Company: utils.Pointer("Acme"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.ContactStatusQualified, got.Status)
		assert.Equal(t, "Acme", got.Company)
		// 10 company + 10 qualified + note type, with the status-change note in history
		assert.Equal(t, 22, got.LeadScore)
		assert.LessOrEqual(t, got.LeadScore, 100)

		history, err := f.svc.CRM.ListInteractions(ctx, c.ID, 1)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "Status changed from new to qualified", history[0].Description)
	})

	t.Run("plain field edits leave the score alone", func(t *testing.T) {
		before, err := f.svc.CRM.GetContact(ctx, c.ID)
		require.NoError(t, err)
		got, err := f.svc.CRM.UpdateContact(ctx, c.ID, ContactUpdate{City: utils.Pointer("Lisbon")})
		require.NoError(t, err)
		assert.Equal(t, "Lisbon", got.City)
		assert.Equal(t, before.LeadScore, got.LeadScore)
		assert.Equal(t, before.TotalInteractions, got.TotalInteractions)
	})

	t.Run("email collision", func(t *testing.T) {
		other := f.contact(t, ContactInput{Email: "other@example.com"})
		_, err := f.svc.CRM.UpdateContact(ctx, other.ID, ContactUpdate{Email: utils.Pointer("u@example.com")})
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	})

	t.Run("missing contact", func(t *testing.T) {
		_, err := f.svc.CRM.UpdateContact(ctx, "missing", ContactUpdate{City: utils.Pointer("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteContactCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	seq := f.sequence(t, SequenceInput{TriggerStatus: []models.ContactStatus{models.ContactStatusNew}, Steps: []models.SequenceStep{step("One", nil)}})
	c := f.contact(t, ContactInput{Email: "gone@example.com"})

	enrollments, err := f.svc.Sequences.ListEnrollments(ctx, store.EnrollmentFilter{SequenceID: seq.ID})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)

	require.NoError(t, f.svc.CRM.DeleteContact(ctx, c.ID))

	_, err = f.svc.CRM.GetContact(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	recent, err := f.store.RecentInteractions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
	enrollments, err = f.svc.Sequences.ListEnrollments(ctx, store.EnrollmentFilter{SequenceID: seq.ID})
	require.NoError(t, err)
	assert.Empty(t, enrollments)

	assert.ErrorIs(t, f.svc.CRM.DeleteContact(ctx, c.ID), ErrNotFound)
}

func TestListAndSearchContacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.contact(t, ContactInput{Email: "low@example.com", Company: "Globex"})
	f.clock.Advance(1)
	f.contact(t, ContactInput{Email: "high@example.com", Company: "Globex", Position: "CTO", LeadSource: models.LeadSourceReferral})
	f.clock.Advance(1)
	f.contact(t, ContactInput{Email: "tagged@example.com", Tags: []string{"globex-partner"}, Status: models.ContactStatusCustomer})

	list, total, err := f.svc.CRM.ListContacts(ctx, ContactQuery{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "tagged@example.com", list[0].Email)

	list, total, err = f.svc.CRM.ListContacts(ctx, ContactQuery{Status: models.ContactStatusCustomer})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "tagged@example.com", list[0].Email)

	found, err := f.svc.CRM.SearchContacts(ctx, "GLOBEX", 10)
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "high@example.com", found[0].Email)
	for i := 1; i < len(found); i++ {
		assert.GreaterOrEqual(t, found[i-1].LeadScore, found[i].LeadScore)
	}

	_, err = f.svc.CRM.SearchContacts(ctx, "  ", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAnalytics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	a := f.contact(t, ContactInput{Email: "a@example.com", Status: models.ContactStatusQualified, LeadSource: models.LeadSourceReferral})
	f.contact(t, ContactInput{Email: "b@example.com", Status: models.ContactStatusCustomer, LeadSource: models.LeadSourceReferral})
	f.contact(t, ContactInput{Email: "c@example.com", LeadSource: models.LeadSourceBlog})
	f.sequence(t, SequenceInput{Name: "Idle", Status: models.AutomationPaused})
	f.sequence(t, SequenceInput{Name: "Live"})

	_, err := f.svc.CRM.RecordInteraction(ctx, InteractionInput{ContactID: a.ID, Type: models.InteractionEmailOpened})
	require.NoError(t, err)

	stats, err := f.svc.CRM.DashboardStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalContacts)
	assert.EqualValues(t, 3, stats.NewContactsThisMonth)
	assert.EqualValues(t, 1, stats.QualifiedLeads)
	assert.EqualValues(t, 1, stats.Customers)
	assert.EqualValues(t, 1, stats.ActiveAutomations)
	// one open over two interactions
	assert.Equal(t, 50.0, stats.AvgOpenRate)
	assert.Equal(t, 0.0, stats.AvgClickRate)

	sources, err := f.svc.CRM.LeadSourceStats(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "referral", sources[0].Source)
	assert.EqualValues(t, 2, sources[0].Count)
	assert.Equal(t, 66.67, sources[0].Percentage)
	assert.Equal(t, 33.33, sources[1].Percentage)

	statuses, err := f.svc.CRM.ContactStatusStats(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 3)

	activity, err := f.svc.CRM.RecentActivity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, activity, 2)
	assert.Equal(t, "Ana Lopez", activity[0].ContactName)
}
