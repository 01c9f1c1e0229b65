package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/store/storetest"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func contact(id, email string, score int, created time.Time) *models.Contact {
	return &models.Contact{
		ID:              id,
		FirstName:       "Test",
		Email:           email,
		LeadScore:       score,
		Status:          models.ContactStatusNew,
		LeadSource:      models.LeadSourceWebsite,
		EmailSubscribed: true,
		CreatedAt:       created,
	}
}

func TestDriverBehaviour(t *testing.T) {
	storetest.Run(t, New())
}

func TestContacts(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateContact(ctx, contact("a", "a@example.com", 10, base)))
	require.NoError(t, s.CreateContact(ctx, contact("b", "b@example.com", 40, base.Add(time.Hour))))
	require.NoError(t, s.CreateContact(ctx, contact("c", "c@example.com", 20, base.Add(2*time.Hour))))

	t.Run("email is unique", func(t *testing.T) {
		err := s.CreateContact(ctx, contact("d", "a@example.com", 0, base))
		assert.ErrorIs(t, err, store.ErrDuplicate)

		b, err := s.GetContact(ctx, "b")
		require.NoError(t, err)
		b.Email = "a@example.com"
		assert.ErrorIs(t, s.SaveContact(ctx, b), store.ErrDuplicate)
	})

	t.Run("returned contacts are copies", func(t *testing.T) {
		a, err := s.GetContact(ctx, "a")
		require.NoError(t, err)
		a.FirstName = "Changed"
		again, err := s.GetContact(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Test", again.FirstName)
	})

	t.Run("sorting and paging", func(t *testing.T) {
		newest, err := s.FindContacts(ctx, store.ContactFilter{Sort: store.SortNewest})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, ids(newest))

		byScore, err := s.FindContacts(ctx, store.ContactFilter{Sort: store.SortScore, Skip: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(byScore))

		n, err := s.CountContacts(ctx, store.ContactFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("group by status", func(t *testing.T) {
		groups, err := s.GroupContacts(ctx, store.GroupByStatus)
		require.NoError(t, err)
		assert.Equal(t, []models.GroupCount{{Key: "new", Count: 3}}, groups)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, s.CreateInteraction(ctx, &models.Interaction{ID: "i1", ContactID: "a", CreatedAt: base}))
		require.NoError(t, s.IncrementContactAnalytics(ctx, models.ContactAnalytics{ContactID: "a", Date: "2025-03-10", EmailOpens: 1}))
		require.NoError(t, s.CreateEnrollment(ctx, &models.SequenceEnrollment{ID: "e1", ContactID: "a", SequenceID: "s1", IsActive: true}))

		require.NoError(t, s.DeleteContact(ctx, "a"))
		_, err := s.GetContact(ctx, "a")
		assert.ErrorIs(t, err, store.ErrNotFound)

		list, _ := s.ListInteractions(ctx, "a", 0)
		assert.Empty(t, list)
		rows, _ := s.ListContactAnalytics(ctx, "a", 0)
		assert.Empty(t, rows)
		_, err = s.GetEnrollment(ctx, "e1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.DeleteContact(ctx, "a"), store.ErrNotFound)
	})
}

func TestInteractionsAndAnalytics(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateContact(ctx, contact("a", "a@example.com", 0, base)))

	assert.ErrorIs(t, s.CreateInteraction(ctx, &models.Interaction{ID: "x", ContactID: "missing"}), store.ErrNotFound)

	require.NoError(t, s.CreateInteraction(ctx, &models.Interaction{ID: "1", ContactID: "a", CreatedAt: base}))
	require.NoError(t, s.CreateInteraction(ctx, &models.Interaction{ID: "2", ContactID: "a", CreatedAt: base}))
	require.NoError(t, s.CreateInteraction(ctx, &models.Interaction{ID: "3", ContactID: "a", CreatedAt: base.Add(-time.Minute)}))

	list, err := s.ListInteractions(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2", list[0].ID)
	assert.Equal(t, "1", list[1].ID)

	delta := models.ContactAnalytics{ContactID: "a", Date: "2025-03-10", EmailOpens: 1, ScoreChange: 3}
	require.NoError(t, s.IncrementContactAnalytics(ctx, delta))
	require.NoError(t, s.IncrementContactAnalytics(ctx, delta))
	rows, err := s.ListContactAnalytics(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].EmailOpens)
	assert.Equal(t, 6, rows[0].ScoreChange)
}

func TestMarkCampaignSent(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateCampaign(ctx, &models.Campaign{ID: "c1", Status: models.CampaignStatusDraft}))

	require.NoError(t, s.MarkCampaignSent(ctx, "c1", base, 5))
	assert.ErrorIs(t, s.MarkCampaignSent(ctx, "c1", base, 5), store.ErrConflict)
	assert.ErrorIs(t, s.MarkCampaignSent(ctx, "nope", base, 5), store.ErrNotFound)

	c, err := s.GetCampaign(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignStatusSent, c.Status)
	assert.Equal(t, 5, c.EmailsSent)
}

func TestEnrollments(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := base
	later := base.Add(time.Hour)

	require.NoError(t, s.CreateEnrollment(ctx, &models.SequenceEnrollment{ID: "e1", ContactID: "a", SequenceID: "s1", IsActive: true, NextEmailAt: &due}))
	require.NoError(t, s.CreateEnrollment(ctx, &models.SequenceEnrollment{ID: "e2", ContactID: "b", SequenceID: "s1", IsActive: true, NextEmailAt: &later}))

	err := s.CreateEnrollment(ctx, &models.SequenceEnrollment{ID: "e3", ContactID: "a", SequenceID: "s1", IsActive: true})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	found, err := s.FindDueEnrollments(ctx, base)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "e1", found[0].ID)

	n, err := s.DeactivateEnrollments(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	abandoned, err := s.GetEnrollment(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, abandoned.IsActive)
	assert.Nil(t, abandoned.NextEmailAt)
	assert.Nil(t, abandoned.CompletedAt)

	found, err = s.FindDueEnrollments(ctx, later)
	require.NoError(t, err)
	assert.Empty(t, found)

	// A finished pair may be enrolled again
	require.NoError(t, s.CreateEnrollment(ctx, &models.SequenceEnrollment{ID: "e3", ContactID: "a", SequenceID: "s1", IsActive: true}))
}

func ids(list []models.Contact) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}
