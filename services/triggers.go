package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"leadcrm/models"
)

// SequenceMatches reports whether c meets either of seq's trigger conditions
func SequenceMatches(seq *models.EmailSequence, c *models.Contact) bool {
	if c.HasAnyTag(seq.TriggerTags) {
		return true
	}
	return slices.Contains(seq.TriggerStatus, c.Status)
}

// TriggerSequences enrolls c into every active sequence it matches and
// returns the enrollments this call created.
func (s *SequenceService) TriggerSequences(ctx context.Context, c *models.Contact) ([]models.SequenceEnrollment, error) {
	sequences, err := s.Store.ListSequences(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active sequences: %w", err)
	}

	var created []models.SequenceEnrollment
	var errs []error
	for i := range sequences {
		seq := &sequences[i]
		if !SequenceMatches(seq, c) {
			continue
		}
		e, isNew, err := s.enroll(ctx, c.ID, seq)
		if err != nil {
			errs = append(errs, fmt.Errorf("sequence %s: %w", seq.ID, err))
			continue
		}
		if isNew {
			created = append(created, *e)
		}
	}
	return created, errors.Join(errs...)
}
