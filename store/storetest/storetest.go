// Package storetest holds behaviour checks shared by every store.Store
// driver. Records are namespaced per run so the checks can share a database
// with other data.
package storetest

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

// Run executes the driver checks against s.
func Run(t *testing.T, s store.Store) {
	t.Run("audience predicates", func(t *testing.T) { Audience(t, s) })
	t.Run("unsubscribed contacts stay unsubscribed", func(t *testing.T) { Unsubscribed(t, s) })
	t.Run("abandoned enrollments", func(t *testing.T) { Enrollments(t, s) })
}

type fixture struct {
	run      string
	contacts map[string]*models.Contact
}

func (f *fixture) tag(name string) string { return f.run + "-" + name }

// mine keeps the ids created by this fixture, sorted.
func (f *fixture) mine(list []models.Contact) []string {
	var out []string
	for _, c := range list {
		if _, ok := f.contacts[c.ID]; ok {
			out = append(out, strings.TrimPrefix(c.ID, f.run+"-"))
		}
	}
	sort.Strings(out)
	return out
}

// matching is what store.MatchContact selects from the fixture.
func (f *fixture) matching(filter store.ContactFilter) []string {
	var out []string
	for id, c := range f.contacts {
		if store.MatchContact(c, filter) {
			out = append(out, strings.TrimPrefix(id, f.run+"-"))
		}
	}
	sort.Strings(out)
	return out
}

func newContact(run, name string, subscribed bool, status models.ContactStatus, tags ...string) *models.Contact {
	return &models.Contact{
		ID:              run + "-" + name,
		FirstName:       strings.ToUpper(name[:1]) + name[1:],
		LastName:        "Fixture",
		Email:           name + "." + run + "@example.com",
		Status:          status,
		LeadSource:      models.LeadSourceWebsite,
		EmailSubscribed: subscribed,
		Tags:            tags,
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func seed(t *testing.T, s store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{run: uuid.NewString()[:8], contacts: map[string]*models.Contact{}}

	list := []*models.Contact{
		newContact(f.run, "ann", true, models.ContactStatusNew, f.tag("vip")),
		newContact(f.run, "bob", true, models.ContactStatusQualified, f.tag("vip"), f.tag("churned")),
		newContact(f.run, "cat", false, models.ContactStatusNew, f.tag("lead")),
		newContact(f.run, "dan", true, models.ContactStatusCustomer),
		newContact(f.run, "eve", true, models.ContactStatusNew, f.tag("lead")),
	}
	list[3].Company = "Acme 50xyoff"
	list[4].Company = "Acme 50%_off"
	for _, c := range list {
		require.NoError(t, s.CreateContact(ctx, c))
		f.contacts[c.ID] = c
	}
	t.Cleanup(func() {
		for id := range f.contacts {
			_ = s.DeleteContact(context.Background(), id)
		}
	})
	return f
}

// Audience checks the predicates campaigns and sequences select recipients with.
func Audience(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	anyTag := []string{f.tag("vip"), f.tag("lead")}

	cases := []struct {
		name   string
		filter store.ContactFilter
		want   []string
	}{
		{
			name:   "subscribed with any tag",
			filter: store.ContactFilter{Subscribed: utils.Pointer(true), AnyTags: anyTag},
			want:   []string{"ann", "bob", "eve"},
		},
		{
			name:   "excluded tag wins",
			filter: store.ContactFilter{AnyTags: anyTag, NoneTags: []string{f.tag("churned")}},
			want:   []string{"ann", "cat", "eve"},
		},
		{
			name:   "untagged contacts pass an exclusion",
			filter: store.ContactFilter{NoneTags: []string{f.tag("vip"), f.tag("lead")}},
			want:   []string{"dan"},
		},
		{
			name:   "status in",
			filter: store.ContactFilter{AnyTags: anyTag, Statuses: []models.ContactStatus{models.ContactStatusNew}},
			want:   []string{"ann", "cat", "eve"},
		},
		{
			name:   "unsubscribed only",
			filter: store.ContactFilter{Subscribed: utils.Pointer(false)},
			want:   []string{"cat"},
		},
		{
			name:   "search is literal",
			filter: store.ContactFilter{Search: "50%_OFF"},
			want:   []string{"eve"},
		},
		{
			name:   "search covers tags",
			filter: store.ContactFilter{Search: f.tag("CHURN")},
			want:   []string{"bob"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, f.matching(tc.filter), "fixture disagrees with MatchContact")

			found, err := s.FindContacts(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, f.mine(found))
		})
	}

	t.Run("count agrees with find", func(t *testing.T) {
		n, err := s.CountContacts(ctx, store.ContactFilter{Subscribed: utils.Pointer(true), AnyTags: anyTag})
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})
}

// Unsubscribed checks that a false email_subscribed survives insert and
// full saves.
func Unsubscribed(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := seed(t, s)
	id := f.run + "-cat"

	got, err := s.GetContact(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.EmailSubscribed)

	got.EmailSubscribed = true
	require.NoError(t, s.SaveContact(ctx, got))
	got.EmailSubscribed = false
	got.Notes = "opted out again"
	require.NoError(t, s.SaveContact(ctx, got))

	again, err := s.GetContact(ctx, id)
	require.NoError(t, err)
	assert.False(t, again.EmailSubscribed)
	assert.Equal(t, "opted out again", again.Notes)
}

// Enrollments checks inactive inserts and that abandoning a sequence leaves
// completed_at unset.
func Enrollments(t *testing.T, s store.Store) {
	ctx := context.Background()
	run := uuid.NewString()[:8]
	sequenceID := run + "-seq"
	now := time.Now().UTC().Truncate(time.Millisecond)
	next := now.Add(time.Hour)

	done := &models.SequenceEnrollment{
		ID: run + "-done", ContactID: run + "-c1", SequenceID: sequenceID,
		EnrolledAt: now, CompletedAt: &now, IsActive: false,
	}
	active := &models.SequenceEnrollment{
		ID: run + "-active", ContactID: run + "-c2", SequenceID: sequenceID,
		EnrolledAt: now, NextEmailAt: &next, IsActive: true,
	}
	require.NoError(t, s.CreateEnrollment(ctx, done))
	require.NoError(t, s.CreateEnrollment(ctx, active))

	got, err := s.GetEnrollment(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive, "inactive insert must stay inactive")

	n, err := s.DeactivateEnrollments(ctx, sequenceID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = s.GetEnrollment(ctx, active.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.NextEmailAt)
	assert.Nil(t, got.CompletedAt)

	_, err = s.FindActiveEnrollment(ctx, active.ContactID, sequenceID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.GetEnrollment(ctx, done.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, now, *got.CompletedAt, time.Millisecond)
}
