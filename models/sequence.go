package models

import "time"

// EmailSequence represents an automated multi-step email sequence
type EmailSequence struct {
	ID          string `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	Name        string `gorm:"not null" json:"name" bson:"name"`
	Description string `json:"description" bson:"description"`

	// Triggers
	TriggerTags   []string        `gorm:"type:jsonb;serializer:json" json:"trigger_tags" bson:"trigger_tags"`
	TriggerStatus []ContactStatus `gorm:"type:jsonb;serializer:json" json:"trigger_status" bson:"trigger_status"`

	Steps  []SequenceStep   `gorm:"type:jsonb;serializer:json" json:"steps" bson:"steps"`
	Status AutomationStatus `gorm:"type:varchar(20);default:'active';index" json:"status" bson:"status"`

	CreatedAt time.Time `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// SequenceStep is one email in a sequence. DelayHours counts from the
// previous step, or from enrollment for the first step.
type SequenceStep struct {
	Subject     string `json:"subject" bson:"subject" validate:"required"`
	HTMLContent string `json:"html_content" bson:"html_content" validate:"required"`
	TextContent string `json:"text_content,omitempty" bson:"text_content,omitempty"`
	DelayHours  *int   `json:"delay_hours,omitempty" bson:"delay_hours,omitempty" validate:"omitempty,min=0"`
}

// Delay returns the step delay, falling back to defaultHours when unset.
func (s SequenceStep) Delay(defaultHours int) time.Duration {
	hours := defaultHours
	if s.DelayHours != nil {
		hours = *s.DelayHours
	}
	return time.Duration(hours) * time.Hour
}

// SequenceEnrollment tracks a contact's progress through a sequence
type SequenceEnrollment struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"id"`
	ContactID   string     `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_active_enrollment,where:is_active = true" json:"contact_id" bson:"contact_id"`
	SequenceID  string     `gorm:"type:varchar(36);not null;index;uniqueIndex:idx_active_enrollment,where:is_active = true" json:"sequence_id" bson:"sequence_id"`
	CurrentStep int        `gorm:"default:0" json:"current_step" bson:"current_step"`
	EnrolledAt  time.Time  `gorm:"not null" json:"enrolled_at" bson:"enrolled_at"`
	NextEmailAt *time.Time `gorm:"index" json:"next_email_at" bson:"next_email_at"`
	CompletedAt *time.Time `json:"completed_at" bson:"completed_at"`
	IsActive    bool       `gorm:"not null;index" json:"is_active" bson:"is_active"`
}

// SweepReport summarises one pass over due enrollments
type SweepReport struct {
	Due       int       `json:"due"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Completed int       `json:"completed"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}
