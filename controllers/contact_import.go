package controller

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"leadcrm/models"
	"leadcrm/services"
	"leadcrm/utils"
)

const maxImportSize = 5 << 20

var exportHeader = []string{
	"email", "first_name", "last_name", "phone", "company", "position",
	"status", "lead_source", "lead_score", "city", "state", "country", "tags",
	"email_subscribed",
}

// ImportContacts creates contacts from an uploaded CSV file. The header row
// names the columns; tags are separated by ';'.
func (cc *ContactController) ImportContacts(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File upload error", err)
	}

	// Check file size (max 5MB)
	if file.Size > maxImportSize {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "File too large (max 5MB)", nil)
	}

	src, err := file.Open()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to open file", err)
	}
	defer src.Close()

	rows, err := parseContactCSV(src)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV file", err)
	}
	if len(rows) == 0 {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "CSV file must have at least a header and one row", nil)
	}

	report, err := cc.CRM.ImportContacts(c.UserContext(), rows)
	if err != nil {
		return serviceError(c, err, "Failed to import contacts")
	}

	return c.JSON(utils.SuccessResponse(report))
}

// parseContactCSV maps rows onto ContactInput by header name. A row whose
// column count differs from the header is kept with Err set so it is reported
// against its line.
func parseContactCSV(r io.Reader) ([]services.ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	first, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	header := make([]string, len(first))
	for i, col := range first {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}

	var out []services.ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(header) {
			out = append(out, services.ImportRow{
				Line: line,
				Err:  fmt.Errorf("expected %d columns, got %d", len(header), len(record)),
			})
			continue
		}
		out = append(out, services.ImportRow{Line: line, Contact: contactFromRecord(header, record)})
	}
	return out, nil
}

func contactFromRecord(header, record []string) services.ContactInput {
	data := make(map[string]string, len(header))
	for i, col := range header {
		data[col] = strings.TrimSpace(record[i])
	}

	in := services.ContactInput{
		FirstName:  data["first_name"],
		LastName:   data["last_name"],
		Email:      data["email"],
		Phone:      data["phone"],
		Company:    data["company"],
		Position:   data["position"],
		Status:     models.ContactStatus(data["status"]),
		LeadSource: models.LeadSource(data["lead_source"]),
		City:       data["city"],
		State:      data["state"],
		Country:    data["country"],
		Notes:      data["notes"],
	}
	if tags := data["tags"]; tags != "" {
		in.Tags = strings.Split(tags, ";")
	}
	if sub := strings.ToLower(data["email_subscribed"]); sub != "" {
		subscribed := sub == "true" || sub == "yes" || sub == "1"
		in.EmailSubscribed = &subscribed
	}
	return in
}

// ExportContacts streams every contact as CSV
func (cc *ContactController) ExportContacts(c *fiber.Ctx) error {
	contacts, _, err := cc.CRM.ListContacts(c.UserContext(), services.ContactQuery{})
	if err != nil {
		return serviceError(c, err, "Failed to fetch contacts")
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=contacts_export_"+time.Now().Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	defer writer.Flush()

	if err := writer.Write(exportHeader); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}
	for _, contact := range contacts {
		record := []string{
			contact.Email,
			contact.FirstName,
			contact.LastName,
			contact.Phone,
			contact.Company,
			contact.Position,
			string(contact.Status),
			string(contact.LeadSource),
			strconv.Itoa(contact.LeadScore),
			contact.City,
			contact.State,
			contact.Country,
			strings.Join(contact.Tags, ";"),
			strconv.FormatBool(contact.EmailSubscribed),
		}
		if err := writer.Write(record); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
		}
	}
	return nil
}
