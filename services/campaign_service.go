package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
	"leadcrm/worker"
)

type CampaignService struct {
	Store        store.Store
	Mailer       utils.Mailer
	Tasks        TaskRunner
	Interactions InteractionRecorder
	Audience     *AudienceResolver
	Now          func() time.Time
	Logger       *logrus.Entry

	render renderer
}

type CampaignInput struct {
	Name         string                 `json:"name" validate:"required,max=200"`
	Subject      string                 `json:"subject" validate:"required,max=500"`
	HTMLContent  string                 `json:"html_content" validate:"required"`
	TextContent  string                 `json:"text_content"`
	TargetTags   []string               `json:"target_tags"`
	TargetStatus []models.ContactStatus `json:"target_status"`
	ExcludeTags  []string               `json:"exclude_tags"`
	ScheduledAt  *time.Time             `json:"scheduled_at"`
}

type CampaignUpdate struct {
	Name         *string                 `json:"name" validate:"omitempty,max=200"`
	Subject      *string                 `json:"subject" validate:"omitempty,max=500"`
	HTMLContent  *string                 `json:"html_content"`
	TextContent  *string                 `json:"text_content"`
	TargetTags   *[]string               `json:"target_tags"`
	TargetStatus *[]models.ContactStatus `json:"target_status"`
	ExcludeTags  *[]string               `json:"exclude_tags"`
}

// Dispatch is returned by SendCampaign once the campaign is marked sent.
// Delivery continues on Task.
type Dispatch struct {
	CampaignID     string       `json:"campaign_id"`
	RecipientCount int          `json:"recipient_count"`
	TaskID         string       `json:"task_id"`
	Task           *worker.Task `json:"-"`
}

// DispatchResult is attached to the dispatch task when it finishes
type DispatchResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*models.Campaign, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid("%v", err)
	}

	now := s.Now()
	c := &models.Campaign{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Subject:      in.Subject,
		HTMLContent:  in.HTMLContent,
		TextContent:  in.TextContent,
		TargetTags:   normalizeTags(in.TargetTags),
		TargetStatus: in.TargetStatus,
		ExcludeTags:  normalizeTags(in.ExcludeTags),
		Status:       models.CampaignStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		c.ScheduledAt = &at
		c.Status = models.CampaignStatusScheduled
	}

	n, err := s.Audience.Count(ctx, CampaignAudience(c))
	if err != nil {
		return nil, fmt.Errorf("count audience: %w", err)
	}
	c.TotalRecipients = int(n)

	if err := s.Store.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"recipients":  c.TotalRecipients,
		"status":      c.Status,
	}).Info("Campaign created")
	return c, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "campaign", id)
	}
	return c, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, skip, limit int) ([]models.Campaign, int64, error) {
	total, err := s.Store.CountCampaigns(ctx)
	if err != nil {
		return nil, 0, err
	}
	list, err := s.Store.ListCampaigns(ctx, skip, limit)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UpdateCampaign edits a draft or scheduled campaign. Changing the targeting
// takes a fresh audience snapshot.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id string, u CampaignUpdate) (*models.Campaign, error) {
	if err := utils.ValidateStruct(u); err != nil {
		return nil, invalid("%v", err)
	}
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Sendable() {
		return nil, ErrCampaignLocked
	}

	setIf(&c.Name, u.Name)
	setIf(&c.Subject, u.Subject)
	setIf(&c.HTMLContent, u.HTMLContent)
	setIf(&c.TextContent, u.TextContent)
	if u.TargetTags != nil || u.TargetStatus != nil || u.ExcludeTags != nil {
		if u.TargetTags != nil {
			c.TargetTags = normalizeTags(*u.TargetTags)
		}
		setIf(&c.TargetStatus, u.TargetStatus)
		if u.ExcludeTags != nil {
			c.ExcludeTags = normalizeTags(*u.ExcludeTags)
		}
		n, err := s.Audience.Count(ctx, CampaignAudience(c))
		if err != nil {
			return nil, fmt.Errorf("count audience: %w", err)
		}
		c.TotalRecipients = int(n)
	}
	c.UpdatedAt = s.Now()

	if err := s.Store.SaveCampaign(ctx, c); err != nil {
		return nil, mapNotFound(err, "campaign", id)
	}
	return c, nil
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, id string) error {
	if err := s.Store.DeleteCampaign(ctx, id); err != nil {
		return mapNotFound(err, "campaign", id)
	}
	s.Logger.WithField("campaign_id", id).Info("Campaign deleted")
	return nil
}

// ScheduleCampaign moves a draft (or reschedules a scheduled) campaign to
// be sent at the given time by the scheduler.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, id string, at time.Time) (*models.Campaign, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Sendable() {
		return nil, ErrInvalidTransition
	}
	if !at.After(s.Now()) {
		return nil, invalid("scheduled_at must be in the future")
	}

	at = at.UTC()
	c.ScheduledAt = &at
	c.Status = models.CampaignStatusScheduled
	c.UpdatedAt = s.Now()
	if err := s.Store.SaveCampaign(ctx, c); err != nil {
		return nil, mapNotFound(err, "campaign", id)
	}
	return c, nil
}

// SendCampaign resolves the audience, marks the campaign sent and queues
// delivery. It returns as soon as the status flip is stored.
func (s *CampaignService) SendCampaign(ctx context.Context, id string) (*Dispatch, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.Sendable() {
		return nil, ErrInvalidTransition
	}

	audience, err := s.Audience.Resolve(ctx, CampaignAudience(c))
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	if len(audience) == 0 {
		return nil, ErrEmptyAudience
	}

	sentAt := s.Now()
	if err := s.Store.MarkCampaignSent(ctx, id, sentAt, len(audience)); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return nil, ErrInvalidTransition
		default:
			return nil, mapNotFound(err, "campaign", id)
		}
	}
	c.Status = models.CampaignStatusSent
	c.SentAt = &sentAt
	c.EmailsSent = len(audience)

	s.Logger.WithFields(logrus.Fields{
		"campaign_id": id,
		"recipients":  len(audience),
	}).Info("Campaign marked sent, queueing delivery")

	task, err := s.Tasks.Submit("campaign_send:"+id, func(ctx context.Context, t *worker.Task) error {
		return s.deliver(ctx, t, c, audience)
	})
	if err != nil {
		s.rollback(ctx, id, err)
		return nil, fmt.Errorf("queue campaign delivery: %w", err)
	}

	return &Dispatch{
		CampaignID:     id,
		RecipientCount: len(audience),
		TaskID:         task.ID(),
		Task:           task,
	}, nil
}

// deliver sends one personalized message per recipient and reconciles the
// results. A store failure or panic rolls the campaign back to draft.
func (s *CampaignService) deliver(ctx context.Context, t *worker.Task, c *models.Campaign, audience []models.Contact) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("campaign delivery panicked: %v", r)
		}
		if err != nil {
			s.rollback(ctx, c.ID, err)
		}
	}()

	msgs := make([]utils.Message, len(audience))
	for i := range audience {
		msgs[i] = s.render.message(&audience[i], c.Subject, c.HTMLContent, c.TextContent)
	}

	results := s.Mailer.SendBulk(ctx, msgs, func(done, total int) {
		t.SetProgress(done, total, fmt.Sprintf("Sent %d of %d", done, total))
	})

	var res DispatchResult
	for _, r := range results {
		if r.Success {
			res.Delivered++
		} else {
			res.Failed++
		}
	}

	if err := s.Store.SetCampaignDelivery(ctx, c.ID, res.Delivered, res.Failed); err != nil {
		return fmt.Errorf("store delivery counts: %w", err)
	}

	for i, r := range results {
		if !r.Success {
			continue
		}
		_, ierr := s.Interactions.RecordInteraction(ctx, InteractionInput{
			ContactID:   audience[i].ID,
			Type:        models.InteractionEmailSent,
			Description: fmt.Sprintf("Campaign email sent: %s", c.Name),
			Metadata: map[string]any{
				"campaign_id": c.ID,
				"message_id":  r.MessageID,
				"subject":     c.Subject,
			},
			CreatedBy: "system",
		})
		if ierr != nil {
			utils.LogError("campaign_interaction_failed", ierr, map[string]interface{}{
				"campaign_id": c.ID,
				"contact_id":  audience[i].ID,
			})
		}
	}

	t.SetResult(res)
	s.Logger.WithFields(logrus.Fields{
		"campaign_id": c.ID,
		"delivered":   res.Delivered,
		"failed":      res.Failed,
	}).Info("Campaign delivery finished")
	return nil
}

func (s *CampaignService) rollback(ctx context.Context, id string, cause error) {
	utils.LogError("campaign_send_failed", cause, map[string]interface{}{
		"campaign_id": id,
	})
	if err := s.Store.SetCampaignStatus(context.WithoutCancel(ctx), id, models.CampaignStatusDraft); err != nil {
		utils.LogError("campaign_rollback_failed", err, map[string]interface{}{
			"campaign_id": id,
		})
		return
	}
	s.Logger.WithField("campaign_id", id).Warn("Campaign rolled back to draft")
}

// SendDueScheduledCampaigns sends every scheduled campaign whose time has
// passed and returns how many were dispatched. A campaign with no audience
// stays scheduled.
func (s *CampaignService) SendDueScheduledCampaigns(ctx context.Context) (int, error) {
	due, err := s.Store.FindDueScheduledCampaigns(ctx, s.Now())
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, c := range due {
		if _, err := s.SendCampaign(ctx, c.ID); err != nil {
			if errors.Is(err, ErrEmptyAudience) {
				s.Logger.WithField("campaign_id", c.ID).Warn("Scheduled campaign has no audience")
				continue
			}
			errs = append(errs, fmt.Errorf("campaign %s: %w", c.ID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *CampaignService) CampaignStats(ctx context.Context, id string) (*models.CampaignStats, error) {
	c, err := s.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CampaignStats{
		CampaignID:      c.ID,
		Status:          c.Status,
		TotalRecipients: c.TotalRecipients,
		EmailsSent:      c.EmailsSent,
		EmailsDelivered: c.EmailsDelivered,
		EmailsFailed:    c.EmailsFailed,
		DeliveryRate:    rate(c.EmailsDelivered, c.EmailsSent),
		OpenRate:        rate(c.EmailsOpened, c.EmailsDelivered),
		ClickRate:       rate(c.EmailsClicked, c.EmailsDelivered),
		BounceRate:      rate(c.EmailsBounced, c.EmailsSent),
	}, nil
}

func rate(n, of int) float64 {
	return percentage(int64(n), int64(of))
}
