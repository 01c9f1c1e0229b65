// Package postgres implements store.Store on gorm with the postgres driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leadcrm/models"
	"leadcrm/store"
)

type Store struct {
	DB *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Models lists every table managed by AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.Contact{},
		&models.Interaction{},
		&models.ContactAnalytics{},
		&models.EmailTemplate{},
		&models.Campaign{},
		&models.EmailSequence{},
		&models.SequenceEnrollment{},
	}
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return store.ErrDuplicate
	}
	return err
}

func first[T any](db *gorm.DB, query string, args ...interface{}) (*T, error) {
	var out T
	if err := db.Where(query, args...).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// saveExisting writes every column of an existing row. gorm's Save would
// insert a missing row instead of reporting it.
func saveExisting(db *gorm.DB, model interface{}) error {
	res := db.Model(model).Select("*").Omit("created_at").Updates(model)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func deleteByID(db *gorm.DB, model interface{}, id string) error {
	res := db.Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Contacts

func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	return translate(s.DB.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	return first[models.Contact](s.DB.WithContext(ctx), "id = ?", id)
}

func (s *Store) GetContactByEmail(ctx context.Context, email string) (*models.Contact, error) {
	return first[models.Contact](s.DB.WithContext(ctx), "email = ?", email)
}

func (s *Store) SaveContact(ctx context.Context, c *models.Contact) error {
	return saveExisting(s.DB.WithContext(ctx), c)
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteByID(tx, &models.Contact{}, id); err != nil {
			return err
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.Interaction{}).Error; err != nil {
			return fmt.Errorf("delete interactions: %w", err)
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.ContactAnalytics{}).Error; err != nil {
			return fmt.Errorf("delete analytics: %w", err)
		}
		if err := tx.Where("contact_id = ?", id).Delete(&models.SequenceEnrollment{}).Error; err != nil {
			return fmt.Errorf("delete enrollments: %w", err)
		}
		return nil
	})
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) applyContactFilter(db *gorm.DB, f store.ContactFilter) *gorm.DB {
	if f.Subscribed != nil {
		db = db.Where("email_subscribed = ?", *f.Subscribed)
	}
	if len(f.AnyTags) > 0 {
		db = db.Where("jsonb_exists_any(COALESCE(tags, '[]'::jsonb), ?)", pq.Array(f.AnyTags))
	}
	if len(f.NoneTags) > 0 {
		db = db.Where("NOT jsonb_exists_any(COALESCE(tags, '[]'::jsonb), ?)", pq.Array(f.NoneTags))
	}
	if len(f.Statuses) > 0 {
		db = db.Where("status IN ?", f.Statuses)
	}
	if len(f.Sources) > 0 {
		db = db.Where("lead_source IN ?", f.Sources)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		conds := make([]string, 0, len(store.SearchFields)+1)
		args := make([]interface{}, 0, len(store.SearchFields)+1)
		for _, field := range store.SearchFields {
			conds = append(conds, field+" ILIKE ?")
			args = append(args, pattern)
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(tags, '[]'::jsonb)) AS t(tag) WHERE t.tag ILIKE ?)")
		args = append(args, pattern)
		db = db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	return db
}

func (s *Store) FindContacts(ctx context.Context, f store.ContactFilter) ([]models.Contact, error) {
	db := s.applyContactFilter(s.DB.WithContext(ctx).Model(&models.Contact{}), f)
	if f.Sort == store.SortScore {
		db = db.Order("lead_score DESC")
	}
	db = db.Order("created_at DESC").Order("id")
	if f.Skip > 0 {
		db = db.Offset(f.Skip)
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	var out []models.Contact
	if err := db.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CountContacts(ctx context.Context, f store.ContactFilter) (int64, error) {
	var n int64
	err := s.applyContactFilter(s.DB.WithContext(ctx).Model(&models.Contact{}), f).Count(&n).Error
	return n, err
}

func (s *Store) GroupContacts(ctx context.Context, field store.GroupField) ([]models.GroupCount, error) {
	switch field {
	case store.GroupByStatus, store.GroupByLeadSource:
	default:
		return nil, fmt.Errorf("unsupported group field %q", field)
	}
	var out []models.GroupCount
	err := s.DB.WithContext(ctx).Model(&models.Contact{}).
		Select(string(field) + " AS key, COUNT(*) AS count").
		Group(string(field)).
		Order("count DESC").Order("key").
		Scan(&out).Error
	return out, err
}

func (s *Store) EngagementRates(ctx context.Context) (store.EngagementRates, error) {
	var rates store.EngagementRates
	err := s.DB.WithContext(ctx).Model(&models.Contact{}).
		Select("COALESCE(AVG(email_opens::float / total_interactions), 0) AS open_rate, " +
			"COALESCE(AVG(email_clicks::float / total_interactions), 0) AS click_rate").
		Where("email_opens > 0 AND total_interactions > 0").
		Scan(&rates).Error
	return rates, err
}

// Interactions

func (s *Store) CreateInteraction(ctx context.Context, i *models.Interaction) error {
	return translate(s.DB.WithContext(ctx).Create(i).Error)
}

func (s *Store) ListInteractions(ctx context.Context, contactID string, limit int) ([]models.Interaction, error) {
	db := s.DB.WithContext(ctx).Where("contact_id = ?", contactID).Order("created_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var out []models.Interaction
	return out, db.Find(&out).Error
}

func (s *Store) RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var out []models.Interaction
	return out, db.Find(&out).Error
}

// Analytics

func (s *Store) IncrementContactAnalytics(ctx context.Context, d models.ContactAnalytics) error {
	add := func(col string) clause.Expr {
		return gorm.Expr("contact_analytics." + col + " + EXCLUDED." + col)
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "contact_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"email_opens":        add("email_opens"),
			"email_clicks":       add("email_clicks"),
			"website_visits":     add("website_visits"),
			"form_submissions":   add("form_submissions"),
			"meetings_scheduled": add("meetings_scheduled"),
			"score_change":       add("score_change"),
		}),
	}).Create(&d).Error
}

func (s *Store) ListContactAnalytics(ctx context.Context, contactID string, limit int) ([]models.ContactAnalytics, error) {
	db := s.DB.WithContext(ctx).Where("contact_id = ?", contactID).Order("date DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	var out []models.ContactAnalytics
	return out, db.Find(&out).Error
}

// Templates

func (s *Store) CreateTemplate(ctx context.Context, t *models.EmailTemplate) error {
	return translate(s.DB.WithContext(ctx).Create(t).Error)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	return first[models.EmailTemplate](s.DB.WithContext(ctx), "id = ?", id)
}

func (s *Store) GetTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error) {
	return first[models.EmailTemplate](s.DB.WithContext(ctx), "name = ?", name)
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	var out []models.EmailTemplate
	return out, s.DB.WithContext(ctx).Order("created_at DESC").Find(&out).Error
}

func (s *Store) SaveTemplate(ctx context.Context, t *models.EmailTemplate) error {
	return saveExisting(s.DB.WithContext(ctx), t)
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return deleteByID(s.DB.WithContext(ctx), &models.EmailTemplate{}, id)
}

// Campaigns

func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	return translate(s.DB.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	return first[models.Campaign](s.DB.WithContext(ctx), "id = ?", id)
}

func (s *Store) ListCampaigns(ctx context.Context, skip, limit int) ([]models.Campaign, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if skip > 0 {
		db = db.Offset(skip)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	var out []models.Campaign
	return out, db.Find(&out).Error
}

func (s *Store) CountCampaigns(ctx context.Context) (int64, error) {
	var n int64
	return n, s.DB.WithContext(ctx).Model(&models.Campaign{}).Count(&n).Error
}

func (s *Store) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	return saveExisting(s.DB.WithContext(ctx), c)
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	return deleteByID(s.DB.WithContext(ctx), &models.Campaign{}, id)
}

func (s *Store) updateCampaign(ctx context.Context, id string, fields map[string]interface{}) error {
	res := s.DB.WithContext(ctx).Model(&models.Campaign{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkCampaignSent(ctx context.Context, id string, sentAt time.Time, emailsSent int) error {
	res := s.DB.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, []models.CampaignStatus{models.CampaignStatusDraft, models.CampaignStatusScheduled}).
		Updates(map[string]interface{}{
			"status":      models.CampaignStatusSent,
			"sent_at":     sentAt,
			"emails_sent": emailsSent,
			"updated_at":  sentAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) SetCampaignDelivery(ctx context.Context, id string, delivered, failed int) error {
	return s.updateCampaign(ctx, id, map[string]interface{}{
		"emails_delivered": delivered,
		"emails_failed":    failed,
		"updated_at":       time.Now().UTC(),
	})
}

func (s *Store) SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	return s.updateCampaign(ctx, id, map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) FindDueScheduledCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	var out []models.Campaign
	err := s.DB.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.CampaignStatusScheduled, now).
		Order("scheduled_at").
		Find(&out).Error
	return out, err
}

// Sequences

func (s *Store) CreateSequence(ctx context.Context, q *models.EmailSequence) error {
	return translate(s.DB.WithContext(ctx).Create(q).Error)
}

func (s *Store) GetSequence(ctx context.Context, id string) (*models.EmailSequence, error) {
	return first[models.EmailSequence](s.DB.WithContext(ctx), "id = ?", id)
}

func (s *Store) GetSequenceByName(ctx context.Context, name string) (*models.EmailSequence, error) {
	return first[models.EmailSequence](s.DB.WithContext(ctx), "name = ?", name)
}

func (s *Store) ListSequences(ctx context.Context, activeOnly bool) ([]models.EmailSequence, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC").Order("id")
	if activeOnly {
		db = db.Where("status = ?", models.AutomationActive)
	}
	var out []models.EmailSequence
	return out, db.Find(&out).Error
}

func (s *Store) CountSequences(ctx context.Context, status models.AutomationStatus) (int64, error) {
	db := s.DB.WithContext(ctx).Model(&models.EmailSequence{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var n int64
	return n, db.Count(&n).Error
}

func (s *Store) SaveSequence(ctx context.Context, q *models.EmailSequence) error {
	return saveExisting(s.DB.WithContext(ctx), q)
}

func (s *Store) DeleteSequence(ctx context.Context, id string) error {
	return deleteByID(s.DB.WithContext(ctx), &models.EmailSequence{}, id)
}

// Enrollments

func (s *Store) CreateEnrollment(ctx context.Context, e *models.SequenceEnrollment) error {
	return translate(s.DB.WithContext(ctx).Create(e).Error)
}

func (s *Store) GetEnrollment(ctx context.Context, id string) (*models.SequenceEnrollment, error) {
	return first[models.SequenceEnrollment](s.DB.WithContext(ctx), "id = ?", id)
}

func (s *Store) FindActiveEnrollment(ctx context.Context, contactID, sequenceID string) (*models.SequenceEnrollment, error) {
	return first[models.SequenceEnrollment](s.DB.WithContext(ctx),
		"contact_id = ? AND sequence_id = ? AND is_active = ?", contactID, sequenceID, true)
}

func (s *Store) ListEnrollments(ctx context.Context, f store.EnrollmentFilter) ([]models.SequenceEnrollment, error) {
	db := s.DB.WithContext(ctx).Order("enrolled_at DESC")
	if f.ContactID != "" {
		db = db.Where("contact_id = ?", f.ContactID)
	}
	if f.SequenceID != "" {
		db = db.Where("sequence_id = ?", f.SequenceID)
	}
	if f.ActiveOnly {
		db = db.Where("is_active = ?", true)
	}
	var out []models.SequenceEnrollment
	return out, db.Find(&out).Error
}

func (s *Store) FindDueEnrollments(ctx context.Context, now time.Time) ([]models.SequenceEnrollment, error) {
	var out []models.SequenceEnrollment
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND next_email_at IS NOT NULL AND next_email_at <= ?", true, now).
		Order("next_email_at").
		Find(&out).Error
	return out, err
}

func (s *Store) SaveEnrollment(ctx context.Context, e *models.SequenceEnrollment) error {
	return saveExisting(s.DB.WithContext(ctx), e)
}

func (s *Store) DeactivateEnrollments(ctx context.Context, sequenceID string) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.SequenceEnrollment{}).
		Where("sequence_id = ? AND is_active = ?", sequenceID, true).
		Updates(map[string]interface{}{
			"is_active":     false,
			"next_email_at": nil,
		})
	return res.RowsAffected, res.Error
}
