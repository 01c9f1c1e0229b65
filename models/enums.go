package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidEnum is returned when a status, source or type value is not
// one of the known constants.
var ErrInvalidEnum = errors.New("invalid enum value")

type ContactStatus string

const (
	ContactStatusNew       ContactStatus = "new"
	ContactStatusQualified ContactStatus = "qualified"
	ContactStatusEngaged   ContactStatus = "engaged"
	ContactStatusCustomer  ContactStatus = "customer"
	ContactStatusInactive  ContactStatus = "inactive"
)

var ContactStatuses = []ContactStatus{
	ContactStatusNew,
	ContactStatusQualified,
	ContactStatusEngaged,
	ContactStatusCustomer,
	ContactStatusInactive,
}

type LeadSource string

const (
	LeadSourceWebsite       LeadSource = "website"
	LeadSourceBlog          LeadSource = "blog"
	LeadSourceSocialMedia   LeadSource = "social_media"
	LeadSourceReferral      LeadSource = "referral"
	LeadSourceEmailCampaign LeadSource = "email_campaign"
	LeadSourcePaidAds       LeadSource = "paid_ads"
	LeadSourceColdOutreach  LeadSource = "cold_outreach"
	LeadSourceEvent         LeadSource = "event"
	LeadSourceWebinar       LeadSource = "webinar"
	LeadSourceOther         LeadSource = "other"
)

var LeadSources = []LeadSource{
	LeadSourceWebsite,
	LeadSourceBlog,
	LeadSourceSocialMedia,
	LeadSourceReferral,
	LeadSourceEmailCampaign,
	LeadSourcePaidAds,
	LeadSourceColdOutreach,
	LeadSourceEvent,
	LeadSourceWebinar,
	LeadSourceOther,
}

type InteractionType string

const (
	InteractionEmailSent        InteractionType = "email_sent"
	InteractionEmailOpened      InteractionType = "email_opened"
	InteractionEmailClicked     InteractionType = "email_clicked"
	InteractionWebsiteVisit     InteractionType = "website_visit"
	InteractionFormSubmitted    InteractionType = "form_submitted"
	InteractionMeetingScheduled InteractionType = "meeting_scheduled"
	InteractionMeetingCompleted InteractionType = "meeting_completed"
	InteractionPhoneCall        InteractionType = "phone_call"
	InteractionNoteAdded        InteractionType = "note_added"
)

var InteractionTypes = []InteractionType{
	InteractionEmailSent,
	InteractionEmailOpened,
	InteractionEmailClicked,
	InteractionWebsiteVisit,
	InteractionFormSubmitted,
	InteractionMeetingScheduled,
	InteractionMeetingCompleted,
	InteractionPhoneCall,
	InteractionNoteAdded,
}

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

var CampaignStatuses = []CampaignStatus{
	CampaignStatusDraft,
	CampaignStatusScheduled,
	CampaignStatusSent,
	CampaignStatusPaused,
	CampaignStatusCompleted,
}

// Sendable reports whether a campaign in this status may be sent.
func (s CampaignStatus) Sendable() bool {
	return s == CampaignStatusDraft || s == CampaignStatusScheduled
}

type AutomationStatus string

const (
	AutomationActive  AutomationStatus = "active"
	AutomationPaused  AutomationStatus = "paused"
	AutomationStopped AutomationStatus = "stopped"
)

var AutomationStatuses = []AutomationStatus{
	AutomationActive,
	AutomationPaused,
	AutomationStopped,
}

func parseEnum[T ~string](kind, raw string, known []T) (T, error) {
	for _, v := range known {
		if string(v) == raw {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %s %q", ErrInvalidEnum, kind, raw)
}

func unmarshalEnum[T ~string](data []byte, kind string, known []T, dst *T) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%s must be a string: %w", kind, err)
	}
	v, err := parseEnum(kind, raw, known)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func ParseContactStatus(s string) (ContactStatus, error) {
	return parseEnum("contact status", s, ContactStatuses)
}

func ParseLeadSource(s string) (LeadSource, error) {
	return parseEnum("lead source", s, LeadSources)
}

func ParseInteractionType(s string) (InteractionType, error) {
	return parseEnum("interaction type", s, InteractionTypes)
}

func ParseAutomationStatus(s string) (AutomationStatus, error) {
	return parseEnum("automation status", s, AutomationStatuses)
}

func (s *ContactStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, "contact status", ContactStatuses, s)
}

func (s *LeadSource) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, "lead source", LeadSources, s)
}

func (t *InteractionType) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, "interaction type", InteractionTypes, t)
}

func (s *CampaignStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, "campaign status", CampaignStatuses, s)
}

func (s *AutomationStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, "automation status", AutomationStatuses, s)
}
