package models

import "time"

// AnalyticsDateLayout is the key format for daily rollup rows
const AnalyticsDateLayout = "2006-01-02"

// ContactAnalytics is a per-contact, per-day engagement rollup
type ContactAnalytics struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	ContactID         string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_contact_day" json:"contact_id" bson:"contact_id"`
	Date              string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_contact_day" json:"date" bson:"date"`
	EmailOpens        int       `gorm:"default:0" json:"email_opens" bson:"email_opens"`
	EmailClicks       int       `gorm:"default:0" json:"email_clicks" bson:"email_clicks"`
	WebsiteVisits     int       `gorm:"default:0" json:"website_visits" bson:"website_visits"`
	FormSubmissions   int       `gorm:"default:0" json:"form_submissions" bson:"form_submissions"`
	MeetingsScheduled int       `gorm:"default:0" json:"meetings_scheduled" bson:"meetings_scheduled"`
	ScoreChange       int       `gorm:"default:0" json:"score_change" bson:"score_change"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

func (ContactAnalytics) TableName() string {
	return "contact_analytics"
}

// IsZero reports whether the rollup carries no counts
func (a ContactAnalytics) IsZero() bool {
	return a.EmailOpens == 0 && a.EmailClicks == 0 && a.WebsiteVisits == 0 &&
		a.FormSubmissions == 0 && a.MeetingsScheduled == 0 && a.ScoreChange == 0
}

type DashboardStats struct {
	TotalContacts        int64   `json:"total_contacts"`
	NewContactsThisMonth int64   `json:"new_contacts_this_month"`
	QualifiedLeads       int64   `json:"qualified_leads"`
	Customers            int64   `json:"customers"`
	TotalCampaigns       int64   `json:"total_campaigns"`
	ActiveAutomations    int64   `json:"active_automations"`
	AvgOpenRate          float64 `json:"avg_open_rate"`
	AvgClickRate         float64 `json:"avg_click_rate"`
}

type LeadSourceStats struct {
	Source     string  `json:"source"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type ContactStatusStats struct {
	Status     string  `json:"status"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type RecentActivity struct {
	Type        InteractionType `json:"type"`
	Description string          `json:"description"`
	ContactName string          `json:"contact_name"`
	ContactID   string          `json:"contact_id"`
	Timestamp   time.Time       `json:"timestamp"`
}

// GroupCount is one bucket of a count-by-field aggregation
type GroupCount struct {
	Key   string `json:"key" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}
