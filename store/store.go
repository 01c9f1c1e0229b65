// Package store defines the persistence contract used by the services and
// the drivers that implement it.
package store

import (
	"context"
	"errors"
	"time"

	"leadcrm/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a conditional write finds the record in
	// an unexpected state.
	ErrConflict = errors.New("conditional update failed")
)

type ContactSort string

const (
	SortNewest ContactSort = "created_at"
	SortScore  ContactSort = "lead_score"
)

// ContactFilter is an AND of every non-empty field.
type ContactFilter struct {
	AnyTags      []string
	NoneTags     []string
	Statuses     []models.ContactStatus
	Sources      []models.LeadSource
	Subscribed   *bool
	Search       string
	CreatedAfter *time.Time
	Sort         ContactSort
	Skip         int
	Limit        int
}

type GroupField string

const (
	GroupByStatus     GroupField = "status"
	GroupByLeadSource GroupField = "lead_source"
)

// EngagementRates are averaged over contacts that have at least one open
// and one interaction. Values are fractions, not percentages.
type EngagementRates struct {
	OpenRate  float64
	ClickRate float64
}

type EnrollmentFilter struct {
	ContactID  string
	SequenceID string
	ActiveOnly bool
}

type ContactStore interface {
	CreateContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*models.Contact, error)
	SaveContact(ctx context.Context, c *models.Contact) error
	// DeleteContact removes the contact with its interactions, analytics
	// rows and enrollments.
	DeleteContact(ctx context.Context, id string) error
	FindContacts(ctx context.Context, f ContactFilter) ([]models.Contact, error)
	CountContacts(ctx context.Context, f ContactFilter) (int64, error)
	GroupContacts(ctx context.Context, field GroupField) ([]models.GroupCount, error)
	EngagementRates(ctx context.Context) (EngagementRates, error)
}

type InteractionStore interface {
	CreateInteraction(ctx context.Context, i *models.Interaction) error
	// ListInteractions returns newest first; limit <= 0 returns all.
	ListInteractions(ctx context.Context, contactID string, limit int) ([]models.Interaction, error)
	RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error)
}

type AnalyticsStore interface {
	// IncrementContactAnalytics adds delta's counters to the row for
	// (delta.ContactID, delta.Date), creating it when absent.
	IncrementContactAnalytics(ctx context.Context, delta models.ContactAnalytics) error
	ListContactAnalytics(ctx context.Context, contactID string, limit int) ([]models.ContactAnalytics, error)
}

type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *models.EmailTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error)
	GetTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error)
	ListTemplates(ctx context.Context) ([]models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, t *models.EmailTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *models.Campaign) error
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, skip, limit int) ([]models.Campaign, error)
	CountCampaigns(ctx context.Context) (int64, error)
	SaveCampaign(ctx context.Context, c *models.Campaign) error
	DeleteCampaign(ctx context.Context, id string) error
	// MarkCampaignSent flips a draft or scheduled campaign to sent in a
	// single write. It returns ErrConflict for any other status.
	MarkCampaignSent(ctx context.Context, id string, sentAt time.Time, emailsSent int) error
	SetCampaignDelivery(ctx context.Context, id string, delivered, failed int) error
	SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error
	FindDueScheduledCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error)
}

type SequenceStore interface {
	CreateSequence(ctx context.Context, s *models.EmailSequence) error
	GetSequence(ctx context.Context, id string) (*models.EmailSequence, error)
	GetSequenceByName(ctx context.Context, name string) (*models.EmailSequence, error)
	ListSequences(ctx context.Context, activeOnly bool) ([]models.EmailSequence, error)
	CountSequences(ctx context.Context, status models.AutomationStatus) (int64, error)
	SaveSequence(ctx context.Context, s *models.EmailSequence) error
	DeleteSequence(ctx context.Context, id string) error
}

type EnrollmentStore interface {
	// CreateEnrollment returns ErrDuplicate when an active enrollment for
	// the same contact and sequence exists.
	CreateEnrollment(ctx context.Context, e *models.SequenceEnrollment) error
	GetEnrollment(ctx context.Context, id string) (*models.SequenceEnrollment, error)
	FindActiveEnrollment(ctx context.Context, contactID, sequenceID string) (*models.SequenceEnrollment, error)
	ListEnrollments(ctx context.Context, f EnrollmentFilter) ([]models.SequenceEnrollment, error)
	FindDueEnrollments(ctx context.Context, now time.Time) ([]models.SequenceEnrollment, error)
	SaveEnrollment(ctx context.Context, e *models.SequenceEnrollment) error
	// DeactivateEnrollments abandons every active enrollment in the sequence.
	// completed_at is left unset since none of them finished.
	DeactivateEnrollments(ctx context.Context, sequenceID string) (int64, error)
}

// Store is the full persistence surface
type Store interface {
	ContactStore
	InteractionStore
	AnalyticsStore
	TemplateStore
	CampaignStore
	SequenceStore
	EnrollmentStore
	Close(ctx context.Context) error
}
