package models

import (
	"strings"
	"time"
)

// Contact represents a lead or customer tracked by the CRM
type Contact struct {
	ID        string `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	FirstName string `gorm:"not null" json:"first_name" bson:"first_name"`
	LastName  string `gorm:"not null" json:"last_name" bson:"last_name"`
	Email     string `gorm:"not null;uniqueIndex" json:"email" bson:"email"`
	Phone     string `json:"phone,omitempty" bson:"phone,omitempty"`
	Company   string `gorm:"index" json:"company,omitempty" bson:"company,omitempty"`
	Position  string `json:"position,omitempty" bson:"position,omitempty"`

	// Lead management
	Status     ContactStatus `gorm:"type:varchar(20);default:'new';index" json:"status" bson:"status"`
	LeadSource LeadSource    `gorm:"type:varchar(30);default:'website';index" json:"lead_source" bson:"lead_source"`
	LeadScore  int           `gorm:"default:0;index" json:"lead_score" bson:"lead_score"`

	// Location
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	State   string `json:"state,omitempty" bson:"state,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`

	// Follow-up
	LastContactDate  *time.Time `json:"last_contact_date" bson:"last_contact_date"`
	NextFollowUpDate *time.Time `json:"next_follow_up_date" bson:"next_follow_up_date"`
	EmailSubscribed  bool       `gorm:"not null;index" json:"email_subscribed" bson:"email_subscribed"`

	Tags         []string       `gorm:"type:jsonb;serializer:json" json:"tags" bson:"tags"`
	CustomFields map[string]any `gorm:"type:jsonb;serializer:json" json:"custom_fields" bson:"custom_fields"`
	Notes        string         `gorm:"type:text" json:"notes" bson:"notes"`

	// Engagement counters (denormalized from interactions)
	TotalInteractions   int        `gorm:"default:0" json:"total_interactions" bson:"total_interactions"`
	LastInteractionDate *time.Time `json:"last_interaction_date" bson:"last_interaction_date"`
	EmailOpens          int        `gorm:"default:0" json:"email_opens" bson:"email_opens"`
	EmailClicks         int        `gorm:"default:0" json:"email_clicks" bson:"email_clicks"`
	WebsiteVisits       int        `gorm:"default:0" json:"website_visits" bson:"website_visits"`

	CreatedAt time.Time `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// HasTag reports whether the contact carries tag
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the contact carries at least one of tags
func (c *Contact) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

// MergeFields returns the values available to {{field}} placeholders.
func (c *Contact) MergeFields() map[string]string {
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"company":    c.Company,
		"position":   c.Position,
		"city":       c.City,
		"state":      c.State,
		"country":    c.Country,
	}
}

// Interaction is an immutable engagement event for a contact
type Interaction struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	ContactID   string          `gorm:"type:varchar(36);not null;index" json:"contact_id" bson:"contact_id"`
	Type        InteractionType `gorm:"type:varchar(30);not null;index" json:"type" bson:"type"`
	Description string          `gorm:"type:text" json:"description" bson:"description"`
	Metadata    map[string]any  `gorm:"type:jsonb;serializer:json" json:"metadata" bson:"metadata"`
	CreatedAt   time.Time       `gorm:"not null;index" json:"created_at" bson:"created_at"`
	CreatedBy   string          `json:"created_by,omitempty" bson:"created_by,omitempty"`
}
