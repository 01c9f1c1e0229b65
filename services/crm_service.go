package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
	"leadcrm/worker"
)

// SequenceTrigger enrolls a contact into every sequence its attributes match
type SequenceTrigger interface {
	TriggerSequences(ctx context.Context, c *models.Contact) ([]models.SequenceEnrollment, error)
}

// InteractionRecorder appends an interaction and runs the engagement update
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, in InteractionInput) (*models.Interaction, error)
}

type CRMService struct {
	Store            store.Store
	Mailer           utils.Mailer
	Tasks            TaskRunner
	Triggers         SequenceTrigger
	Now              func() time.Time
	SendWelcomeEmail bool
	Logger           *logrus.Entry

	render renderer
}

type ContactInput struct {
	FirstName       string               `json:"first_name" validate:"required,max=100"`
	LastName        string               `json:"last_name" validate:"required,max=100"`
	Email           string               `json:"email" validate:"required,email_format"`
	Phone           string               `json:"phone" validate:"max=40"`
	Company         string               `json:"company" validate:"max=200"`
	Position        string               `json:"position" validate:"max=200"`
	Status          models.ContactStatus `json:"status"`
	LeadSource      models.LeadSource    `json:"lead_source"`
	City            string               `json:"city"`
	State           string               `json:"state"`
	Country         string               `json:"country"`
	Tags            []string             `json:"tags"`
	EmailSubscribed *bool                `json:"email_subscribed"`
	CustomFields    map[string]any       `json:"custom_fields"`
	Notes           string               `json:"notes"`
	NextFollowUp    *time.Time           `json:"next_follow_up_date"`
}

// ContactUpdate carries a partial update; nil fields are left untouched.
type ContactUpdate struct {
	FirstName        *string               `json:"first_name" validate:"omitempty,max=100"`
	LastName         *string               `json:"last_name" validate:"omitempty,max=100"`
	Email            *string               `json:"email" validate:"omitempty,email_format"`
	Phone            *string               `json:"phone"`
	Company          *string               `json:"company"`
	Position         *string               `json:"position"`
	Status           *models.ContactStatus `json:"status"`
	LeadSource       *models.LeadSource    `json:"lead_source"`
	City             *string               `json:"city"`
	State            *string               `json:"state"`
	Country          *string               `json:"country"`
	Tags             *[]string             `json:"tags"`
	EmailSubscribed  *bool                 `json:"email_subscribed"`
	CustomFields     map[string]any        `json:"custom_fields"`
	Notes            *string               `json:"notes"`
	LastContactDate  *time.Time            `json:"last_contact_date"`
	NextFollowUpDate *time.Time            `json:"next_follow_up_date"`
}

type InteractionInput struct {
	ContactID   string                 `json:"contact_id" validate:"required"`
	Type        models.InteractionType `json:"type" validate:"required"`
	Description string                 `json:"description" validate:"max=2000"`
	Metadata    map[string]any         `json:"metadata"`
	CreatedBy   string                 `json:"created_by"`
}

// ContactQuery lists contacts newest first
type ContactQuery struct {
	Skip       int
	Limit      int
	Status     models.ContactStatus
	LeadSource models.LeadSource
	Tags       []string
	Search     string
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func (s *CRMService) CreateContact(ctx context.Context, in ContactInput) (*models.Contact, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid("%v", err)
	}
	if err := checkEnums(&in.Status, &in.LeadSource); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.Store.GetContactByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.Now()
	c := &models.Contact{
		ID:               uuid.NewString(),
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Email:            email,
		Phone:            in.Phone,
		Company:          in.Company,
		Position:         in.Position,
		Status:           in.Status,
		LeadSource:       in.LeadSource,
		City:             in.City,
		State:            in.State,
		Country:          in.Country,
		Tags:             normalizeTags(in.Tags),
		EmailSubscribed:  true,
		CustomFields:     in.CustomFields,
		Notes:            in.Notes,
		NextFollowUpDate: in.NextFollowUp,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if c.Status == "" {
		c.Status = models.ContactStatusNew
	}
	if c.LeadSource == "" {
		c.LeadSource = models.LeadSourceWebsite
	}
	if in.EmailSubscribed != nil {
		c.EmailSubscribed = *in.EmailSubscribed
	}
	c.LeadScore = ScoreContact(c, nil, nil, now)

	if err := s.Store.CreateContact(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create contact: %w", err)
	}

	s.Logger.WithFields(logrus.Fields{
		"contact_id":  c.ID,
		"lead_source": c.LeadSource,
		"lead_score":  c.LeadScore,
	}).Info("Contact created")

	s.note(ctx, c.ID, fmt.Sprintf("Contact created from %s", c.LeadSource), map[string]any{
		"lead_source": string(c.LeadSource),
	})

	enrolled := s.trigger(ctx, c)
	if c.EmailSubscribed && s.SendWelcomeEmail && len(enrolled) == 0 {
		s.queueWelcomeEmail(c)
	}

	return s.GetContact(ctx, c.ID)
}

func (s *CRMService) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	c, err := s.Store.GetContact(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "contact", id)
	}
	return c, nil
}

func (s *CRMService) ListContacts(ctx context.Context, q ContactQuery) ([]models.Contact, int64, error) {
	f := store.ContactFilter{
		AnyTags: normalizeTags(q.Tags),
		Search:  strings.TrimSpace(q.Search),
		Sort:    store.SortNewest,
	}
	if q.Status != "" {
		f.Statuses = []models.ContactStatus{q.Status}
	}
	if q.LeadSource != "" {
		f.Sources = []models.LeadSource{q.LeadSource}
	}

	total, err := s.Store.CountContacts(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	f.Skip, f.Limit = q.Skip, q.Limit
	contacts, err := s.Store.FindContacts(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

// SearchContacts matches q against name, email, company, position and tags,
// highest score first.
func (s *CRMService) SearchContacts(ctx context.Context, q string, limit int) ([]models.Contact, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, invalid("search query is required")
	}
	return s.Store.FindContacts(ctx, store.ContactFilter{
		Search: q,
		Sort:   store.SortScore,
		Limit:  limit,
	})
}

func (s *CRMService) UpdateContact(ctx context.Context, id string, u ContactUpdate) (*models.Contact, error) {
	if err := utils.ValidateStruct(u); err != nil {
		return nil, invalid("%v", err)
	}
	if err := checkEnums(u.Status, u.LeadSource); err != nil {
		return nil, err
	}
	c, err := s.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	oldStatus := c.Status
	oldTags := slices.Clone(c.Tags)

	if u.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*u.Email))
		if email != c.Email {
			if _, err := s.Store.GetContactByEmail(ctx, email); err == nil {
				return nil, ErrDuplicateEmail
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			c.Email = email
		}
	}

	overrides := ScoreOverrides{
		Status:     u.Status,
		Company:    u.Company,
		Position:   u.Position,
		Phone:      u.Phone,
		LeadSource: u.LeadSource,
	}
	if u.Tags != nil {
		overrides.Tags = normalizeTags(*u.Tags)
	}
	rescore := u.Status != nil || u.Company != nil || u.Position != nil ||
		u.Phone != nil || u.LeadSource != nil || u.Tags != nil

	now := s.Now()
	if rescore {
		history, err := s.Store.ListInteractions(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		c.LeadScore = ScoreContact(c, history, &overrides, now)
	}

	setIf(&c.FirstName, u.FirstName)
	setIf(&c.LastName, u.LastName)
	setIf(&c.Phone, u.Phone)
	setIf(&c.Company, u.Company)
	setIf(&c.Position, u.Position)
	setIf(&c.Status, u.Status)
	setIf(&c.LeadSource, u.LeadSource)
	setIf(&c.City, u.City)
	setIf(&c.State, u.State)
	setIf(&c.Country, u.Country)
	setIf(&c.EmailSubscribed, u.EmailSubscribed)
	setIf(&c.Notes, u.Notes)
	if u.Tags != nil {
		c.Tags = overrides.Tags
	}
	if u.CustomFields != nil {
		c.CustomFields = u.CustomFields
	}
	if u.LastContactDate != nil {
		c.LastContactDate = u.LastContactDate
	}
	if u.NextFollowUpDate != nil {
		c.NextFollowUpDate = u.NextFollowUpDate
	}
	c.UpdatedAt = now

	if err := s.Store.SaveContact(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("save contact: %w", err)
	}

	statusChanged := c.Status != oldStatus
	if statusChanged {
		s.Logger.WithFields(logrus.Fields{
			"contact_id": id,
			"from":       oldStatus,
			"to":         c.Status,
		}).Info("Contact status changed")
		s.note(ctx, id, fmt.Sprintf("Status changed from %s to %s", oldStatus, c.Status), map[string]any{
			"old_status": string(oldStatus),
			"new_status": string(c.Status),
		})
	}
	if statusChanged || !slices.Equal(oldTags, c.Tags) {
		s.trigger(ctx, c)
	}

	return s.GetContact(ctx, id)
}

// checkEnums rejects unknown status or source values; nil or empty values pass.
func checkEnums(status *models.ContactStatus, source *models.LeadSource) error {
	if status != nil && *status != "" {
		if _, err := models.ParseContactStatus(string(*status)); err != nil {
			return invalid("%v", err)
		}
	}
	if source != nil && *source != "" {
		if _, err := models.ParseLeadSource(string(*source)); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func (s *CRMService) DeleteContact(ctx context.Context, id string) error {
	if err := s.Store.DeleteContact(ctx, id); err != nil {
		return mapNotFound(err, "contact", id)
	}
	s.Logger.WithField("contact_id", id).Info("Contact deleted")
	return nil
}

// RecordInteraction appends an interaction, bumps the contact's engagement
// counters and recomputes its score over the full interaction history.
func (s *CRMService) RecordInteraction(ctx context.Context, in InteractionInput) (*models.Interaction, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid("%v", err)
	}
	if _, err := models.ParseInteractionType(string(in.Type)); err != nil {
		return nil, invalid("%v", err)
	}
	c, err := s.GetContact(ctx, in.ContactID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	i := &models.Interaction{
		ID:          uuid.NewString(),
		ContactID:   in.ContactID,
		Type:        in.Type,
		Description: in.Description,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.Store.CreateInteraction(ctx, i); err != nil {
		return nil, mapNotFound(err, "contact", in.ContactID)
	}

	if err := s.trackEngagement(ctx, c, i.Type, now); err != nil {
		return i, fmt.Errorf("update engagement: %w", err)
	}
	return i, nil
}

func (s *CRMService) trackEngagement(ctx context.Context, c *models.Contact, t models.InteractionType, now time.Time) error {
	delta := models.ContactAnalytics{
		ID:        uuid.NewString(),
		ContactID: c.ID,
		Date:      now.Format(models.AnalyticsDateLayout),
		CreatedAt: now,
	}
	switch t {
	case models.InteractionEmailOpened:
		c.EmailOpens++
		delta.EmailOpens = 1
	case models.InteractionEmailClicked:
		c.EmailClicks++
		delta.EmailClicks = 1
	case models.InteractionWebsiteVisit:
		c.WebsiteVisits++
		delta.WebsiteVisits = 1
	case models.InteractionFormSubmitted:
		delta.FormSubmissions = 1
	case models.InteractionMeetingScheduled:
		delta.MeetingsScheduled = 1
	}
	c.TotalInteractions++
	c.LastInteractionDate = &now
	c.UpdatedAt = now

	history, err := s.Store.ListInteractions(ctx, c.ID, 0)
	if err != nil {
		return err
	}
	before := c.LeadScore
	c.LeadScore = ScoreContact(c, history, nil, now)
	delta.ScoreChange = c.LeadScore - before

	if err := s.Store.SaveContact(ctx, c); err != nil {
		return err
	}

	if !delta.IsZero() {
		if err := s.Store.IncrementContactAnalytics(ctx, delta); err != nil {
			utils.LogError("analytics_rollup_failed", err, map[string]interface{}{
				"contact_id": c.ID,
				"date":       delta.Date,
			})
		}
	}
	return nil
}

// ListInteractions returns a contact's interactions, newest first
func (s *CRMService) ListInteractions(ctx context.Context, contactID string, limit int) ([]models.Interaction, error) {
	if _, err := s.GetContact(ctx, contactID); err != nil {
		return nil, err
	}
	return s.Store.ListInteractions(ctx, contactID, limit)
}

func (s *CRMService) GetContactAnalytics(ctx context.Context, contactID string, days int) ([]models.ContactAnalytics, error) {
	if _, err := s.GetContact(ctx, contactID); err != nil {
		return nil, err
	}
	return s.Store.ListContactAnalytics(ctx, contactID, days)
}

// note records an internal note. Failures are logged, not returned.
func (s *CRMService) note(ctx context.Context, contactID, description string, meta map[string]any) {
	_, err := s.RecordInteraction(ctx, InteractionInput{
		ContactID:   contactID,
		Type:        models.InteractionNoteAdded,
		Description: description,
		Metadata:    meta,
		CreatedBy:   "system",
	})
	if err != nil {
		utils.LogError("note_failed", err, map[string]interface{}{
			"contact_id":  contactID,
			"description": description,
		})
	}
}

func (s *CRMService) trigger(ctx context.Context, c *models.Contact) []models.SequenceEnrollment {
	if s.Triggers == nil {
		return nil
	}
	enrolled, err := s.Triggers.TriggerSequences(ctx, c)
	if err != nil {
		utils.LogError("sequence_trigger_failed", err, map[string]interface{}{
			"contact_id": c.ID,
		})
	}
	return enrolled
}

func (s *CRMService) queueWelcomeEmail(c *models.Contact) {
	contact := *c
	_, err := s.Tasks.Submit("welcome_email", func(ctx context.Context, t *worker.Task) error {
		return s.sendWelcomeEmail(ctx, &contact)
	})
	if err != nil {
		utils.LogError("welcome_email_queue_failed", err, map[string]interface{}{
			"contact_id": c.ID,
		})
	}
}

func (s *CRMService) sendWelcomeEmail(ctx context.Context, c *models.Contact) error {
	tmpl, err := s.Store.GetTemplateByName(ctx, WelcomeTemplateName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		tmpl = WelcomeTemplate()
	}

	res := s.Mailer.Send(ctx, s.render.message(c, tmpl.Subject, tmpl.HTMLContent, tmpl.TextContent))
	if !res.Success {
		return fmt.Errorf("welcome email to %s: %s", c.Email, res.Error)
	}

	_, err = s.RecordInteraction(ctx, InteractionInput{
		ContactID:   c.ID,
		Type:        models.InteractionEmailSent,
		Description: "Welcome email sent",
		Metadata: map[string]any{
			"email_type": "welcome",
			"message_id": res.MessageID,
		},
		CreatedBy: "system",
	})
	return err
}
