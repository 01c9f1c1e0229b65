package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcrm/models"
	"leadcrm/utils"
)

func TestMatchesAudience(t *testing.T) {
	criteria := AudienceCriteria{TargetTags: []string{"a"}, ExcludeTags: []string{"b"}}

	t.Run("target tag without excluded tag is included", func(t *testing.T) {
		c := &models.Contact{Tags: []string{"a"}, Status: models.ContactStatusNew, EmailSubscribed: true}
		assert.True(t, MatchesAudience(c, criteria))
	})

	t.Run("excluded tag wins", func(t *testing.T) {
		c := &models.Contact{Tags: []string{"a", "b"}, Status: models.ContactStatusNew, EmailSubscribed: true}
		assert.False(t, MatchesAudience(c, criteria))
	})

	t.Run("unsubscribed contacts are never targeted", func(t *testing.T) {
		c := &models.Contact{Tags: []string{"a"}, EmailSubscribed: false}
		assert.False(t, MatchesAudience(c, criteria))
		assert.False(t, MatchesAudience(c, AudienceCriteria{}))
	})

	t.Run("target tags are OR'd", func(t *testing.T) {
		c := &models.Contact{Tags: []string{"y"}, EmailSubscribed: true}
		assert.True(t, MatchesAudience(c, AudienceCriteria{TargetTags: []string{"x", "y"}}))
		assert.False(t, MatchesAudience(c, AudienceCriteria{TargetTags: []string{"x"}}))
	})

	t.Run("status axis", func(t *testing.T) {
		c := &models.Contact{Status: models.ContactStatusQualified, EmailSubscribed: true}
		assert.True(t, MatchesAudience(c, AudienceCriteria{
			TargetStatus: []models.ContactStatus{models.ContactStatusNew, models.ContactStatusQualified},
		}))
		assert.False(t, MatchesAudience(c, AudienceCriteria{
			TargetStatus: []models.ContactStatus{models.ContactStatusCustomer},
		}))
	})

	t.Run("axes are AND'd", func(t *testing.T) {
		c := &models.Contact{Tags: []string{"a"}, Status: models.ContactStatusNew, EmailSubscribed: true}
		assert.False(t, MatchesAudience(c, AudienceCriteria{
			TargetTags:   []string{"a"},
			TargetStatus: []models.ContactStatus{models.ContactStatusCustomer},
		}))
	})

	t.Run("empty criteria match every subscribed contact", func(t *testing.T) {
		c := &models.Contact{EmailSubscribed: true}
		assert.True(t, MatchesAudience(c, AudienceCriteria{}))
	})
}

func TestAudienceResolverAgreesWithPredicate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	f.contact(t, ContactInput{Email: "a@example.com", Tags: []string{"a"}})
	f.contact(t, ContactInput{Email: "ab@example.com", Tags: []string{"a", "b"}})
	f.contact(t, ContactInput{Email: "none@example.com"})
	f.contact(t, ContactInput{Email: "unsub@example.com", Tags: []string{"a"}, EmailSubscribed: utils.Pointer(false)})

	criteria := AudienceCriteria{TargetTags: []string{"a"}, ExcludeTags: []string{"b"}}
	got, err := f.svc.Campaigns.Audience.Resolve(ctx, criteria)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a@example.com", got[0].Email)

	all, err := f.svc.Campaigns.Audience.Count(ctx, AudienceCriteria{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, all)
}
