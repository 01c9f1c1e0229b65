package store

import (
	"strings"

	"leadcrm/models"
)

// MatchContact evaluates f's predicates (not sort or paging) against c.
func MatchContact(c *models.Contact, f ContactFilter) bool {
	if f.Subscribed != nil && c.EmailSubscribed != *f.Subscribed {
		return false
	}
	if len(f.AnyTags) > 0 && !c.HasAnyTag(f.AnyTags) {
		return false
	}
	if len(f.NoneTags) > 0 && c.HasAnyTag(f.NoneTags) {
		return false
	}
	if len(f.Statuses) > 0 && !containsValue(f.Statuses, c.Status) {
		return false
	}
	if len(f.Sources) > 0 && !containsValue(f.Sources, c.LeadSource) {
		return false
	}
	if f.CreatedAfter != nil && c.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.Search != "" && !matchesSearch(c, f.Search) {
		return false
	}
	return true
}

// SearchFields are the contact fields a free-text search looks at, besides tags.
var SearchFields = []string{"first_name", "last_name", "email", "company", "position"}

func matchesSearch(c *models.Contact, q string) bool {
	q = strings.ToLower(q)
	for _, v := range []string{c.FirstName, c.LastName, c.Email, c.Company, c.Position} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	for _, t := range c.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func containsValue[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Page clamps skip/limit against n and returns the slice bounds.
func Page(n, skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if skip > n {
		skip = n
	}
	end := n
	if limit > 0 && skip+limit < n {
		end = skip + limit
	}
	return skip, end
}
