// Package services holds the CRM engine: lead scoring, engagement tracking,
// audience resolution, campaign dispatch and the sequence state machine.
package services

import (
	"time"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
	"leadcrm/worker"
)

// TaskRunner accepts background work and hands back an observable handle
type TaskRunner interface {
	Submit(name string, fn worker.TaskFunc) (*worker.Task, error)
}

// Options configures the service set built by New
type Options struct {
	Store  store.Store
	Mailer utils.Mailer
	Tasks  TaskRunner
	Now    func() time.Time

	SendWelcomeEmail bool
	UnsubscribeURL   string
}

// Services is the wired set of engine components
type Services struct {
	CRM       *CRMService
	Campaigns *CampaignService
	Sequences *SequenceService
	Templates *TemplateService
}

func New(opts Options) *Services {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = worker.InlineRunner{}
	}
	log := utils.GetLogger("services")
	r := renderer{unsubscribeURL: opts.UnsubscribeURL}

	crm := &CRMService{
		Store:            opts.Store,
		Mailer:           opts.Mailer,
		Tasks:            tasks,
		Now:              now,
		SendWelcomeEmail: opts.SendWelcomeEmail,
		Logger:           log.WithField("component", "crm"),
		render:           r,
	}
	seq := &SequenceService{
		Store:        opts.Store,
		Mailer:       opts.Mailer,
		Interactions: crm,
		Now:          now,
		Logger:       log.WithField("component", "sequences"),
		render:       r,
	}
	crm.Triggers = seq

	return &Services{
		CRM: crm,
		Campaigns: &CampaignService{
			Store:        opts.Store,
			Mailer:       opts.Mailer,
			Tasks:        tasks,
			Interactions: crm,
			Audience:     &AudienceResolver{Contacts: opts.Store},
			Now:          now,
			Logger:       log.WithField("component", "campaigns"),
			render:       r,
		},
		Sequences: seq,
		Templates: &TemplateService{
			Store:  opts.Store,
			Mailer: opts.Mailer,
			Now:    now,
			Logger: log.WithField("component", "templates"),
			render: r,
		},
	}
}

type renderer struct {
	unsubscribeURL string
}

func (r renderer) fields(c *models.Contact) map[string]string {
	f := c.MergeFields()
	f["unsubscribe_url"] = r.unsubscribeURL
	return f
}

// message personalizes subject and bodies for c
func (r renderer) message(c *models.Contact, subject, html, text string) utils.Message {
	f := r.fields(c)
	return utils.Message{
		To:      c.Email,
		ToName:  c.FullName(),
		Subject: utils.Personalize(subject, f),
		HTML:    utils.Personalize(html, f),
		Text:    utils.Personalize(text, f),
	}
}
