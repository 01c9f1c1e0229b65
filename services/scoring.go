package services

import (
	"strings"
	"time"

	"leadcrm/models"
)

// RecencyWindow bounds the interactions counted by the recency bonus
const RecencyWindow = 30 * 24 * time.Hour

var sourcePoints = map[models.LeadSource]int{
	models.LeadSourceReferral:      25,
	models.LeadSourceWebinar:       20,
	models.LeadSourceEvent:         20,
	models.LeadSourceEmailCampaign: 15,
	models.LeadSourceWebsite:       10,
	models.LeadSourceBlog:          10,
	models.LeadSourceSocialMedia:   8,
	models.LeadSourcePaidAds:       5,
	models.LeadSourceColdOutreach:  3,
	models.LeadSourceOther:         0,
}

var statusPoints = map[models.ContactStatus]int{
	models.ContactStatusCustomer:  25,
	models.ContactStatusEngaged:   15,
	models.ContactStatusQualified: 10,
	models.ContactStatusNew:       0,
	models.ContactStatusInactive:  -10,
}

var (
	executiveMarkers  = []string{"ceo", "cto", "cfo", "director", "vp", "president"}
	managementMarkers = []string{"manager", "lead", "head"}
)

// Profile is the subset of contact fields the initial score depends on
type Profile struct {
	LeadSource models.LeadSource
	Company    string
	Position   string
	Phone      string
}

// ScoreOverrides holds pending field values that take precedence over the
// contact's stored ones. Nil fields fall back to the contact. No score
// component reads Tags today.
type ScoreOverrides struct {
	Status     *models.ContactStatus
	Company    *string
	Position   *string
	Phone      *string
	LeadSource *models.LeadSource
	Tags       []string
}

// InitialScore rates a contact from its source channel and profile completeness.
func InitialScore(p Profile) int {
	score := sourcePoints[p.LeadSource]

	if strings.TrimSpace(p.Company) != "" {
		score += 10
	}
	if pos := strings.ToLower(strings.TrimSpace(p.Position)); pos != "" {
		switch {
		case containsAny(pos, executiveMarkers):
			score += 15
		case containsAny(pos, managementMarkers):
			score += 10
		default:
			score += 5
		}
	}
	if strings.TrimSpace(p.Phone) != "" {
		score += 5
	}

	return min(score, 100)
}

// ScoreContact computes the lead score from the contact's profile, its
// engagement counters, its full interaction history and its status. The
// result is clamped to [0, 100]. now only anchors the recency window.
func ScoreContact(c *models.Contact, history []models.Interaction, o *ScoreOverrides, now time.Time) int {
	profile := Profile{
		LeadSource: c.LeadSource,
		Company:    c.Company,
		Position:   c.Position,
		Phone:      c.Phone,
	}
	status := c.Status
	if o != nil {
		if o.LeadSource != nil {
			profile.LeadSource = *o.LeadSource
		}
		if o.Company != nil {
			profile.Company = *o.Company
		}
		if o.Position != nil {
			profile.Position = *o.Position
		}
		if o.Phone != nil {
			profile.Phone = *o.Phone
		}
		if o.Status != nil {
			status = *o.Status
		}
	}

	score := InitialScore(profile)

	score += min(c.EmailOpens*2, 15)
	score += min(c.EmailClicks*5, 25)
	score += min(c.WebsiteVisits*3, 15)

	seen := make(map[models.InteractionType]struct{})
	recent := 0
	cutoff := now.Add(-RecencyWindow)
	for _, i := range history {
		seen[i.Type] = struct{}{}
		if i.CreatedAt.After(cutoff) {
			recent++
		}
	}
	score += len(seen) * 2

	switch {
	case recent >= 5:
		score += 10
	case recent >= 3:
		score += 5
	}

	score += statusPoints[status]

	return clampScore(score)
}

func clampScore(n int) int {
	return max(0, min(n, 100))
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
