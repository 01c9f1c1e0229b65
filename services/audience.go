package services

import (
	"context"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

// AudienceCriteria selects campaign recipients. An empty axis places no
// restriction on that axis.
type AudienceCriteria struct {
	TargetTags   []string
	TargetStatus []models.ContactStatus
	ExcludeTags  []string
}

// CampaignAudience returns the targeting criteria stored on a campaign
func CampaignAudience(c *models.Campaign) AudienceCriteria {
	return AudienceCriteria{
		TargetTags:   c.TargetTags,
		TargetStatus: c.TargetStatus,
		ExcludeTags:  c.ExcludeTags,
	}
}

// Filter converts the criteria into a store filter over subscribed contacts
func (a AudienceCriteria) Filter() store.ContactFilter {
	return store.ContactFilter{
		AnyTags:    a.TargetTags,
		Statuses:   a.TargetStatus,
		NoneTags:   a.ExcludeTags,
		Subscribed: utils.Pointer(true),
	}
}

// MatchesAudience evaluates the criteria against a single contact
func MatchesAudience(c *models.Contact, a AudienceCriteria) bool {
	return store.MatchContact(c, a.Filter())
}

// AudienceResolver finds the contacts a campaign targets
type AudienceResolver struct {
	Contacts store.ContactStore
}

func (r *AudienceResolver) Resolve(ctx context.Context, a AudienceCriteria) ([]models.Contact, error) {
	return r.Contacts.FindContacts(ctx, a.Filter())
}

func (r *AudienceResolver) Count(ctx context.Context, a AudienceCriteria) (int64, error) {
	return r.Contacts.CountContacts(ctx, a.Filter())
}
