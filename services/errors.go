package services

import (
	"errors"
	"fmt"

	"leadcrm/store"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInvalidTransition = errors.New("campaign cannot be sent")
	ErrEmptyAudience     = errors.New("no contacts found for target audience")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateEmail    = errors.New("a contact with this email already exists")
	ErrCampaignLocked    = errors.New("campaign can no longer be edited")
)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// mapNotFound turns a store miss into a typed not-found error and passes
// anything else through.
func mapNotFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(kind, id)
	}
	return err
}
