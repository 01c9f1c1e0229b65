package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

type TemplateService struct {
	Store  store.Store
	Mailer utils.Mailer
	Now    func() time.Time
	Logger *logrus.Entry

	render renderer
}

type TemplateInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Subject     string `json:"subject" validate:"required,max=500"`
	HTMLContent string `json:"html_content" validate:"required"`
	TextContent string `json:"text_content"`
	IsDefault   bool   `json:"is_default"`
}

type TemplateUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Subject     *string `json:"subject" validate:"omitempty,max=500"`
	HTMLContent *string `json:"html_content"`
	TextContent *string `json:"text_content"`
	IsDefault   *bool   `json:"is_default"`
}

// TestEmailInput asks for a built-in template to be sent to an address
type TestEmailInput struct {
	ToEmail      string `json:"to_email" validate:"required,email_format"`
	Subject      string `json:"subject"`
	TemplateType string `json:"template_type" validate:"omitempty,oneof=welcome followup"`
	FirstName    string `json:"first_name"`
	Company      string `json:"company"`
}

func (s *TemplateService) CreateTemplate(ctx context.Context, in TemplateInput) (*models.EmailTemplate, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return nil, invalid("%v", err)
	}
	now := s.Now()
	t := &models.EmailTemplate{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Subject:     in.Subject,
		HTMLContent: in.HTMLContent,
		TextContent: in.TextContent,
		IsDefault:   in.IsDefault,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateTemplate(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return t, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	t, err := s.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "template", id)
	}
	return t, nil
}

func (s *TemplateService) ListTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	return s.Store.ListTemplates(ctx)
}

func (s *TemplateService) UpdateTemplate(ctx context.Context, id string, u TemplateUpdate) (*models.EmailTemplate, error) {
	if err := utils.ValidateStruct(u); err != nil {
		return nil, invalid("%v", err)
	}
	t, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	setIf(&t.Name, u.Name)
	setIf(&t.Subject, u.Subject)
	setIf(&t.HTMLContent, u.HTMLContent)
	setIf(&t.TextContent, u.TextContent)
	setIf(&t.IsDefault, u.IsDefault)
	t.UpdatedAt = s.Now()
	if err := s.Store.SaveTemplate(ctx, t); err != nil {
		return nil, mapNotFound(err, "template", id)
	}
	return t, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.Store.DeleteTemplate(ctx, id); err != nil {
		return mapNotFound(err, "template", id)
	}
	return nil
}

// SendTestEmail renders a built-in template for a stand-in contact and sends it
func (s *TemplateService) SendTestEmail(ctx context.Context, in TestEmailInput) (utils.SendResult, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return utils.SendResult{}, invalid("%v", err)
	}

	tmpl := WelcomeTemplate()
	if in.TemplateType == "followup" {
		tmpl = FollowUpTemplate()
	}
	subject := in.Subject
	if subject == "" {
		subject = "Test Email from OpsVantage CRM"
	}

	contact := &models.Contact{
		FirstName: in.FirstName,
		Email:     in.ToEmail,
		Company:   in.Company,
	}
	res := s.Mailer.Send(ctx, s.render.message(contact, subject, tmpl.HTMLContent, tmpl.TextContent))

	s.Logger.WithFields(logrus.Fields{
		"to":       in.ToEmail,
		"template": tmpl.Name,
		"success":  res.Success,
	}).Info("Test email sent")
	return res, nil
}
