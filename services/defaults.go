package services

import (
	"context"
	"errors"
	"fmt"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

const (
	WelcomeTemplateName  = "Welcome Email - OpsVantage"
	FollowUpTemplateName = "Follow-up Email - OpsVantage"

	WelcomeSequenceName  = "Welcome Sequence - New Contacts"
	FollowUpSequenceName = "Follow-up Sequence - Qualified Leads"
)

const welcomeHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Welcome to OpsVantage Digital</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #2563eb; color: white; padding: 20px; text-align: center; }
    .content { padding: 30px 20px; }
    .cta-button { background: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block; margin: 20px 0; }
    .footer { background: #f8f9fa; padding: 20px; text-align: center; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>Welcome to OpsVantage Digital!</h1></div>
    <div class="content">
      <h2>Hi {{first_name}},</h2>
      <p>Thank you for joining OpsVantage Digital! We're excited to help you optimize your operations and drive growth.</p>
      <p>As a member of our community, you'll receive:</p>
      <ul>
        <li>Industry insights and best practices</li>
        <li>Digital transformation strategies</li>
        <li>Exclusive tips and resources</li>
        <li>Personalized growth recommendations</li>
      </ul>
      <p>Ready to get started? Check out our latest resources:</p>
      <a href="https://opsvantage.com/resources" class="cta-button">Explore Resources</a>
      <p>If you have any questions, feel free to reach out to our team. We're here to help!</p>
      <p>Best regards,<br>The OpsVantage Digital Team</p>
    </div>
    <div class="footer">
      <p>You're receiving this email because you subscribed to our updates.</p>
      <p><a href="{{unsubscribe_url}}">Unsubscribe</a> | <a href="https://opsvantage.com">Visit our website</a></p>
    </div>
  </div>
</body>
</html>`

const welcomeText = `Welcome to OpsVantage Digital!

Hi {{first_name}},

Thank you for joining OpsVantage Digital! We're excited to help you optimize your operations and drive growth.

As a member of our community, you'll receive:
- Industry insights and best practices
- Digital transformation strategies
- Exclusive tips and resources
- Personalized growth recommendations

Ready to get started? Visit our resources at: https://opsvantage.com/resources

Best regards,
The OpsVantage Digital Team

Unsubscribe: {{unsubscribe_url}} | Website: https://opsvantage.com`

const followUpHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Follow Up - OpsVantage Digital</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #2563eb; color: white; padding: 20px; text-align: center; }
    .content { padding: 30px 20px; }
    .cta-button { background: #16a34a; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block; margin: 20px 0; }
    .footer { background: #f8f9fa; padding: 20px; text-align: center; font-size: 12px; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>Let's Continue the Conversation</h1></div>
    <div class="content">
      <h2>Hi {{first_name}},</h2>
      <p>I wanted to follow up on your recent interest in OpsVantage Digital's solutions.</p>
      <p>Many companies like {{company}} are looking for ways to:</p>
      <ul>
        <li>Streamline their operations</li>
        <li>Improve efficiency and productivity</li>
        <li>Reduce costs while scaling growth</li>
        <li>Implement digital transformation strategies</li>
      </ul>
      <p>I'd love to learn more about your specific challenges and see how we can help.</p>
      <a href="https://calendly.com/opsvantage/consultation" class="cta-button">Schedule a Free Consultation</a>
      <p>Or if you prefer, reply to this email with your availability and I'll work around your schedule.</p>
      <p>Best regards,<br>The OpsVantage Digital Team</p>
    </div>
    <div class="footer">
      <p><a href="{{unsubscribe_url}}">Unsubscribe</a> | <a href="https://opsvantage.com">Visit our website</a></p>
    </div>
  </div>
</body>
</html>`

const followUpText = `Let's Continue the Conversation

Hi {{first_name}},

I wanted to follow up on your recent interest in OpsVantage Digital's solutions.

Many companies like {{company}} are looking for ways to:
- Streamline their operations
- Improve efficiency and productivity
- Reduce costs while scaling growth
- Implement digital transformation strategies

Schedule a free consultation: https://calendly.com/opsvantage/consultation

Best regards,
The OpsVantage Digital Team

Unsubscribe: {{unsubscribe_url}} | Website: https://opsvantage.com`

const gettingStartedHTML = `<h2>Hi {{first_name}},</h2>
<p>Now that you're part of the OpsVantage Digital community, let's dive into how we can help transform your operations.</p>
<p>Here are some key areas where we help businesses like {{company}}:</p>
<ul>
  <li>Process automation and optimization</li>
  <li>Digital workflow implementation</li>
  <li>Performance analytics and insights</li>
  <li>Strategic technology planning</li>
</ul>
<p>Ready to explore? <a href="https://opsvantage.com/consultation">Schedule a free consultation</a></p>`

const caseStudyHTML = `<h2>Hi {{first_name}},</h2>
<p>I wanted to share a relevant case study that might interest you.</p>
<p>We recently helped a company similar to {{company}} achieve:</p>
<ul>
  <li>30% reduction in operational costs</li>
  <li>50% faster process completion times</li>
  <li>99.9% accuracy in automated workflows</li>
</ul>
<p>I'd love to discuss how we could achieve similar results for {{company}}.</p>
<p><a href="https://calendly.com/opsvantage/consultation">Book a 15-minute call</a></p>`

// WelcomeTemplate is the built-in welcome email
func WelcomeTemplate() *models.EmailTemplate {
	return &models.EmailTemplate{
		Name:        WelcomeTemplateName,
		Subject:     "Welcome to OpsVantage Digital, {{first_name}}!",
		HTMLContent: welcomeHTML,
		TextContent: welcomeText,
		IsDefault:   true,
	}
}

// FollowUpTemplate is the built-in follow-up email
func FollowUpTemplate() *models.EmailTemplate {
	return &models.EmailTemplate{
		Name:        FollowUpTemplateName,
		Subject:     "Following up on your interest, {{first_name}}",
		HTMLContent: followUpHTML,
		TextContent: followUpText,
		IsDefault:   true,
	}
}

func defaultSequences() []SequenceInput {
	welcome, followUp := WelcomeTemplate(), FollowUpTemplate()
	return []SequenceInput{
		{
			Name:          WelcomeSequenceName,
			Description:   "Automated welcome sequence for new contacts",
			TriggerTags:   []string{"new_subscriber"},
			TriggerStatus: []models.ContactStatus{models.ContactStatusNew},
			Steps: []models.SequenceStep{
				{
					Subject:     welcome.Subject,
					HTMLContent: welcome.HTMLContent,
					TextContent: welcome.TextContent,
					DelayHours:  utils.Pointer(0),
				},
				{
					Subject:     "Getting started with digital transformation",
					HTMLContent: gettingStartedHTML,
					DelayHours:  utils.Pointer(72),
				},
			},
		},
		{
			Name:          FollowUpSequenceName,
			Description:   "Nurture sequence for qualified leads",
			TriggerStatus: []models.ContactStatus{models.ContactStatusQualified},
			Steps: []models.SequenceStep{
				{
					Subject:     followUp.Subject,
					HTMLContent: followUp.HTMLContent,
					TextContent: followUp.TextContent,
					DelayHours:  utils.Pointer(24),
				},
				{
					Subject:     "Case study: How {{company}} could benefit",
					HTMLContent: caseStudyHTML,
					DelayHours:  utils.Pointer(120),
				},
			},
		},
	}
}

// DefaultsReport lists what InitializeDefaults created
type DefaultsReport struct {
	TemplatesCreated []string `json:"templates_created"`
	SequencesCreated []string `json:"sequences_created"`
}

// InitializeDefaults seeds the built-in templates and sequences. Items that
// already exist by name are left alone, so repeated calls are safe.
func (s *Services) InitializeDefaults(ctx context.Context) (*DefaultsReport, error) {
	report := &DefaultsReport{
		TemplatesCreated: []string{},
		SequencesCreated: []string{},
	}

	for _, t := range []*models.EmailTemplate{WelcomeTemplate(), FollowUpTemplate()} {
		_, err := s.Templates.Store.GetTemplateByName(ctx, t.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return report, err
		}
		if _, err := s.Templates.CreateTemplate(ctx, TemplateInput{
			Name:        t.Name,
			Subject:     t.Subject,
			HTMLContent: t.HTMLContent,
			TextContent: t.TextContent,
			IsDefault:   true,
		}); err != nil {
			return report, fmt.Errorf("seed template %q: %w", t.Name, err)
		}
		report.TemplatesCreated = append(report.TemplatesCreated, t.Name)
	}

	for _, in := range defaultSequences() {
		_, err := s.Sequences.Store.GetSequenceByName(ctx, in.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return report, err
		}
		if _, err := s.Sequences.CreateSequence(ctx, in); err != nil {
			return report, fmt.Errorf("seed sequence %q: %w", in.Name, err)
		}
		report.SequencesCreated = append(report.SequencesCreated, in.Name)
	}

	utils.LogEvent("defaults_initialized", map[string]interface{}{
		"templates": report.TemplatesCreated,
		"sequences": report.SequencesCreated,
	})
	return report, nil
}
