package models

import (
	"time"
)

// Campaign represents a one-off email blast to a filtered audience
type Campaign struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	Name        string `gorm:"not null" json:"name" bson:"name"`
	Subject     string `gorm:"not null" json:"subject" bson:"subject"`
	HTMLContent string `gorm:"type:text" json:"html_content" bson:"html_content"`
	TextContent string `gorm:"type:text" json:"text_content,omitempty" bson:"text_content,omitempty"`

	// Audience
	TargetTags   []string        `gorm:"type:jsonb;serializer:json" json:"target_tags" bson:"target_tags"`
	TargetStatus []ContactStatus `gorm:"type:jsonb;serializer:json" json:"target_status" bson:"target_status"`
	ExcludeTags  []string        `gorm:"type:jsonb;serializer:json" json:"exclude_tags" bson:"exclude_tags"`

	// Scheduling
	Status      CampaignStatus `gorm:"type:varchar(20);default:'draft';index" json:"status" bson:"status"`
	ScheduledAt *time.Time     `json:"scheduled_at" bson:"scheduled_at"`
	SentAt      *time.Time     `json:"sent_at" bson:"sent_at"`

	// Statistics (denormalized for performance)
	TotalRecipients int `gorm:"default:0" json:"total_recipients" bson:"total_recipients"`
	EmailsSent      int `gorm:"default:0" json:"emails_sent" bson:"emails_sent"`
	EmailsDelivered int `gorm:"default:0" json:"emails_delivered" bson:"emails_delivered"`
	EmailsFailed    int `gorm:"default:0" json:"emails_failed" bson:"emails_failed"`
	EmailsOpened    int `gorm:"default:0" json:"emails_opened" bson:"emails_opened"`
	EmailsClicked   int `gorm:"default:0" json:"emails_clicked" bson:"emails_clicked"`
	EmailsBounced   int `gorm:"default:0" json:"emails_bounced" bson:"emails_bounced"`
	Unsubscribes    int `gorm:"default:0" json:"unsubscribes" bson:"unsubscribes"`

	CreatedAt time.Time `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// CampaignStats summarises delivery and engagement rates for a campaign
type CampaignStats struct {
	CampaignID      string         `json:"campaign_id"`
	Status          CampaignStatus `json:"status"`
	TotalRecipients int            `json:"total_recipients"`
	EmailsSent      int            `json:"emails_sent"`
	EmailsDelivered int            `json:"emails_delivered"`
	EmailsFailed    int            `json:"emails_failed"`
	DeliveryRate    float64        `json:"delivery_rate"`
	OpenRate        float64        `json:"open_rate"`
	ClickRate       float64        `json:"click_rate"`
	BounceRate      float64        `json:"bounce_rate"`
}

// EmailTemplate is a reusable subject/body pair
type EmailTemplate struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	Name        string    `gorm:"not null" json:"name" bson:"name"`
	Subject     string    `gorm:"not null" json:"subject" bson:"subject"`
	HTMLContent string    `gorm:"type:text" json:"html_content" bson:"html_content"`
	TextContent string    `gorm:"type:text" json:"text_content,omitempty" bson:"text_content,omitempty"`
	IsDefault   bool      `gorm:"default:false" json:"is_default" bson:"is_default"`
	CreatedAt   time.Time `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
