package services

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

const (
	// FirstStepDelayHours applies to step 0 when it has no delay
	FirstStepDelayHours = 0
	// NextStepDelayHours applies to later steps without a delay
	NextStepDelayHours = 24
)

type SequenceService struct {
	Store        store.Store
	Mailer       utils.Mailer
	Interactions InteractionRecorder
	Now          func() time.Time
	Logger       *logrus.Entry

	render renderer
}

type SequenceInput struct {
	Name          string                  `json:"name" validate:"required,max=200"`
	Description   string                  `json:"description"`
	TriggerTags   []string                `json:"trigger_tags"`
	TriggerStatus []models.ContactStatus  `json:"trigger_status"`
	Steps         []models.SequenceStep   `json:"steps" validate:"dive"`
	Status        models.AutomationStatus `json:"status"`
}

type SequenceUpdate struct {
	Name          *string                  `json:"name" validate:"omitempty,max=200"`
	Description   *string                  `json:"description"`
	TriggerTags   *[]string                `json:"trigger_tags"`
	TriggerStatus *[]models.ContactStatus  `json:"trigger_status"`
	Steps         *[]models.SequenceStep   `json:"steps" validate:"omitempty,dive"`
	Status        *models.AutomationStatus `json:"status"`
}

func (s *SequenceService) CreateSequence(ctx context.Context, in SequenceInput) (*models.EmailSequence, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid("%v", err)
	}
	if in.Status == "" {
		in.Status = models.AutomationActive
	}
	if _, err := models.ParseAutomationStatus(string(in.Status)); err != nil {
		return nil, invalid("%v", err)
	}

	now := s.Now()
	seq := &models.EmailSequence{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		TriggerTags:   normalizeTags(in.TriggerTags),
		TriggerStatus: in.TriggerStatus,
		Steps:         in.Steps,
		Status:        in.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateSequence(ctx, seq); err != nil {
		return nil, fmt.Errorf("create sequence: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{
		"sequence_id": seq.ID,
		"steps":       len(seq.Steps),
	}).Info("Sequence created")
	return seq, nil
}

func (s *SequenceService) GetSequence(ctx context.Context, id string) (*models.EmailSequence, error) {
	seq, err := s.Store.GetSequence(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "sequence", id)
	}
	return seq, nil
}

func (s *SequenceService) ListSequences(ctx context.Context, activeOnly bool) ([]models.EmailSequence, error) {
	return s.Store.ListSequences(ctx, activeOnly)
}

// UpdateSequence edits a sequence. Stopping it deactivates every active
// enrollment; pausing leaves them in place for the sweep to skip.
func (s *SequenceService) UpdateSequence(ctx context.Context, id string, u SequenceUpdate) (*models.EmailSequence, error) {
	if err := utils.ValidateStruct(u); err != nil {
		return nil, invalid("%v", err)
	}
	if u.Status != nil {
		if _, err := models.ParseAutomationStatus(string(*u.Status)); err != nil {
			return nil, invalid("%v", err)
		}
	}
	seq, err := s.GetSequence(ctx, id)
	if err != nil {
		return nil, err
	}
	wasStopped := seq.Status == models.AutomationStopped

	setIf(&seq.Name, u.Name)
	setIf(&seq.Description, u.Description)
	if u.TriggerTags != nil {
		seq.TriggerTags = normalizeTags(*u.TriggerTags)
	}
	setIf(&seq.TriggerStatus, u.TriggerStatus)
	setIf(&seq.Steps, u.Steps)
	setIf(&seq.Status, u.Status)
	now := s.Now()
	seq.UpdatedAt = now

	if err := s.Store.SaveSequence(ctx, seq); err != nil {
		return nil, mapNotFound(err, "sequence", id)
	}

	if seq.Status == models.AutomationStopped && !wasStopped {
		n, err := s.Store.DeactivateEnrollments(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("deactivate enrollments: %w", err)
		}
		s.Logger.WithFields(logrus.Fields{
			"sequence_id": id,
			"enrollments": n,
		}).Info("Sequence stopped")
	}
	return seq, nil
}

func (s *SequenceService) DeleteSequence(ctx context.Context, id string) error {
	if _, err := s.Store.DeactivateEnrollments(ctx, id); err != nil {
		return fmt.Errorf("deactivate enrollments: %w", err)
	}
	if err := s.Store.DeleteSequence(ctx, id); err != nil {
		return mapNotFound(err, "sequence", id)
	}
	s.Logger.WithField("sequence_id", id).Info("Sequence deleted")
	return nil
}

// EnrollContact starts contactID on the sequence. An existing active
// enrollment for the pair is returned as is, with created false.
func (s *SequenceService) EnrollContact(ctx context.Context, contactID, sequenceID string) (*models.SequenceEnrollment, bool, error) {
	if _, err := s.Store.GetContact(ctx, contactID); err != nil {
		return nil, false, mapNotFound(err, "contact", contactID)
	}
	seq, err := s.GetSequence(ctx, sequenceID)
	if err != nil {
		return nil, false, err
	}
	return s.enroll(ctx, contactID, seq)
}

func (s *SequenceService) enroll(ctx context.Context, contactID string, seq *models.EmailSequence) (*models.SequenceEnrollment, bool, error) {
	existing, err := s.Store.FindActiveEnrollment(ctx, contactID, seq.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := s.Now()
	e := &models.SequenceEnrollment{
		ID:          uuid.NewString(),
		ContactID:   contactID,
		SequenceID:  seq.ID,
		CurrentStep: 0,
		EnrolledAt:  now,
		IsActive:    true,
	}
	if len(seq.Steps) > 0 {
		next := now.Add(seq.Steps[0].Delay(FirstStepDelayHours))
		e.NextEmailAt = &next
	}

	if err := s.Store.CreateEnrollment(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent enrollment
			existing, ferr := s.Store.FindActiveEnrollment(ctx, contactID, seq.ID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create enrollment: %w", err)
	}

	s.Logger.WithFields(logrus.Fields{
		"contact_id":  contactID,
		"sequence_id": seq.ID,
	}).Info("Contact enrolled in sequence")

	_, err = s.Interactions.RecordInteraction(ctx, InteractionInput{
		ContactID:   contactID,
		Type:        models.InteractionNoteAdded,
		Description: fmt.Sprintf("Enrolled in email sequence: %s", seq.Name),
		Metadata:    map[string]any{"sequence_id": seq.ID},
		CreatedBy:   "system",
	})
	if err != nil {
		utils.LogError("enrollment_note_failed", err, map[string]interface{}{
			"contact_id":  contactID,
			"sequence_id": seq.ID,
		})
	}
	return e, true, nil
}

func (s *SequenceService) ListEnrollments(ctx context.Context, f store.EnrollmentFilter) ([]models.SequenceEnrollment, error) {
	return s.Store.ListEnrollments(ctx, f)
}

type stepOutcome int

const (
	outcomeSent stepOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeCompleted
)

// ProcessDueEnrollments advances every active enrollment whose next email
// is due. A failing enrollment is counted and does not stop the sweep.
func (s *SequenceService) ProcessDueEnrollments(ctx context.Context) (models.SweepReport, error) {
	report := models.SweepReport{StartedAt: s.Now()}

	due, err := s.Store.FindDueEnrollments(ctx, report.StartedAt)
	if err != nil {
		return report, fmt.Errorf("find due enrollments: %w", err)
	}
	report.Due = len(due)

	for i := range due {
		if ctx.Err() != nil {
			break
		}
		e := &due[i]
		outcomes, err := s.processOne(ctx, e)
		if err != nil {
			report.Errors++
			utils.LogError("sequence_step_failed", err, map[string]interface{}{
				"enrollment_id": e.ID,
				"sequence_id":   e.SequenceID,
				"contact_id":    e.ContactID,
			})
			continue
		}
		for _, o := range outcomes {
			switch o {
			case outcomeSent:
				report.Sent++
			case outcomeFailed:
				report.Failed++
			case outcomeSkipped:
				report.Skipped++
			case outcomeCompleted:
				report.Completed++
			}
		}
	}

	report.Duration = s.Now().Sub(report.StartedAt).String()
	return report, ctx.Err()
}

func (s *SequenceService) processOne(ctx context.Context, e *models.SequenceEnrollment) (outcomes []stepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.WithField("stack", string(debug.Stack())).Error("Sequence step panicked")
			err = fmt.Errorf("sequence step panicked: %v", r)
		}
	}()

	now := s.Now()

	seq, err := s.Store.GetSequence(ctx, e.SequenceID)
	if errors.Is(err, store.ErrNotFound) {
		return []stepOutcome{outcomeSkipped}, s.deactivate(ctx, e, nil)
	}
	if err != nil {
		return nil, err
	}
	switch seq.Status {
	case models.AutomationPaused:
		return []stepOutcome{outcomeSkipped}, nil
	case models.AutomationStopped:
		return []stepOutcome{outcomeSkipped}, s.deactivate(ctx, e, nil)
	}

	contact, err := s.Store.GetContact(ctx, e.ContactID)
	if errors.Is(err, store.ErrNotFound) {
		return []stepOutcome{outcomeSkipped}, s.deactivate(ctx, e, nil)
	}
	if err != nil {
		return nil, err
	}

	if e.CurrentStep >= len(seq.Steps) {
		return []stepOutcome{outcomeCompleted}, s.deactivate(ctx, e, &now)
	}

	step := seq.Steps[e.CurrentStep]
	var outcome stepOutcome
	if !contact.EmailSubscribed {
		outcome = outcomeSkipped
	} else {
		res := s.Mailer.Send(ctx, s.render.message(contact, step.Subject, step.HTMLContent, step.TextContent))
		if res.Success {
			outcome = outcomeSent
			_, ierr := s.Interactions.RecordInteraction(ctx, InteractionInput{
				ContactID:   contact.ID,
				Type:        models.InteractionEmailSent,
				Description: fmt.Sprintf("Sequence email sent: %s", step.Subject),
				Metadata: map[string]any{
					"sequence_id": seq.ID,
					"step":        e.CurrentStep,
					"message_id":  res.MessageID,
				},
				CreatedBy: "system",
			})
			if ierr != nil {
				utils.LogError("sequence_interaction_failed", ierr, map[string]interface{}{
					"enrollment_id": e.ID,
					"contact_id":    contact.ID,
				})
			}
		} else {
			outcome = outcomeFailed
			s.Logger.WithFields(logrus.Fields{
				"enrollment_id": e.ID,
				"step":          e.CurrentStep,
				"error":         res.Error,
			}).Warn("Sequence email failed")
		}
	}
	outcomes = append(outcomes, outcome)

	// The step pointer moves on whether or not the transport succeeded
	e.CurrentStep++
	if e.CurrentStep < len(seq.Steps) {
		next := now.Add(seq.Steps[e.CurrentStep].Delay(NextStepDelayHours))
		e.NextEmailAt = &next
		return outcomes, s.Store.SaveEnrollment(ctx, e)
	}
	return append(outcomes, outcomeCompleted), s.deactivate(ctx, e, &now)
}

// deactivate ends an enrollment. completedAt is nil when the enrollment is
// abandoned rather than finished.
func (s *SequenceService) deactivate(ctx context.Context, e *models.SequenceEnrollment, completedAt *time.Time) error {
	e.IsActive = false
	e.NextEmailAt = nil
	e.CompletedAt = completedAt
	return s.Store.SaveEnrollment(ctx, e)
}
