package services

import (
	"context"
	"errors"
	"strings"
)

// ImportRow is one contact parsed from an import file. Line is the row's
// 1-based position in the source; Err is set when the row could not be parsed.
type ImportRow struct {
	Line    int
	Contact ContactInput
	Err     error
}

// ImportReport summarises a bulk contact import
type ImportReport struct {
	TotalRows  int           `json:"total_rows"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
	Failed     int           `json:"failed"`
	Errors     []ImportError `json:"errors,omitempty"`
}

type ImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

// maxImportErrors caps the per-row errors kept on a report
const maxImportErrors = 100

func (r *ImportReport) fail(row ImportRow, err error) {
	r.Failed++
	if len(r.Errors) < maxImportErrors {
		r.Errors = append(r.Errors, ImportError{
			Row:   row.Line,
			Email: strings.TrimSpace(row.Contact.Email),
			Error: err.Error(),
		})
	}
}

// ImportContacts creates each row as if it came through CreateContact.
// Rows whose email already exists are counted as duplicates and left alone.
func (s *CRMService) ImportContacts(ctx context.Context, rows []ImportRow) (ImportReport, error) {
	report := ImportReport{TotalRows: len(rows)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if row.Err != nil {
			report.fail(row, row.Err)
			continue
		}
		_, err := s.CreateContact(ctx, row.Contact)
		switch {
		case err == nil:
			report.Created++
		case errors.Is(err, ErrDuplicateEmail):
			report.Duplicates++
		default:
			report.fail(row, err)
		}
	}

	s.Logger.WithField("created", report.Created).
		WithField("duplicates", report.Duplicates).
		WithField("failed", report.Failed).
		Info("Contacts imported")
	return report, nil
}
