// Package mongodb implements store.Store on the official MongoDB driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadcrm/models"
	"leadcrm/store"
)

// Collection names
const (
	ColContacts         = "contacts"
	ColInteractions     = "interactions"
	ColContactAnalytics = "contact_analytics"
	ColTemplates        = "email_templates"
	ColCampaigns        = "campaigns"
	ColSequences        = "email_sequences"
	ColEnrollments      = "sequence_enrollments"
)

type Store struct {
	DB *mongo.Database
}

var _ store.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{DB: db}
}

func (s *Store) col(name string) *mongo.Collection {
	return s.DB.Collection(name)
}

func (s *Store) Close(ctx context.Context) error {
	return s.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the collections' indexes. Existing indexes with the
// same keys and options are left untouched by the server.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		ColContacts: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
			{Keys: bson.D{{Key: "lead_score", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		ColInteractions: {
			{Keys: bson.D{{Key: "contact_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		ColContactAnalytics: {
			{Keys: bson.D{{Key: "contact_id", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		ColTemplates: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		ColCampaigns: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		},
		ColSequences: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		ColEnrollments: {
			{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{Key: "contact_id", Value: 1}, {Key: "sequence_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"is_active": true}),
			},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "next_email_at", Value: 1}}},
		},
	}
	for name, idx := range indexes {
		if _, err := s.col(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrDuplicate
	}
	return err
}

func findOne[T any](ctx context.Context, c *mongo.Collection, filter bson.M) (*T, error) {
	var out T
	if err := c.FindOne(ctx, filter).Decode(&out); err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter bson.M, opts *options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func insert(ctx context.Context, c *mongo.Collection, doc interface{}) error {
	_, err := c.InsertOne(ctx, doc)
	return translate(err)
}

func replace(ctx context.Context, c *mongo.Collection, id string, doc interface{}) error {
	res, err := c.ReplaceOne(ctx, bson.M{"id": id}, doc)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func deleteOne(ctx context.Context, c *mongo.Collection, id string) error {
	res, err := c.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func updateOne(ctx context.Context, c *mongo.Collection, id string, set bson.M) error {
	res, err := c.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func pageOptions(skip, limit int) *options.FindOptions {
	opts := options.Find()
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

// Contacts

// ContactFilterBSON translates f into a query document.
func ContactFilterBSON(f store.ContactFilter) bson.M {
	filter := bson.M{}
	if f.Subscribed != nil {
		filter["email_subscribed"] = *f.Subscribed
	}
	tags := bson.M{}
	if len(f.AnyTags) > 0 {
		tags["$in"] = f.AnyTags
	}
	if len(f.NoneTags) > 0 {
		tags["$nin"] = f.NoneTags
	}
	if len(tags) > 0 {
		filter["tags"] = tags
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.Sources) > 0 {
		filter["lead_source"] = bson.M{"$in": f.Sources}
	}
	if f.CreatedAfter != nil {
		filter["created_at"] = bson.M{"$gte": *f.CreatedAfter}
	}
	if f.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		or := make([]bson.M, 0, len(store.SearchFields)+1)
		for _, field := range store.SearchFields {
			or = append(or, bson.M{field: re})
		}
		or = append(or, bson.M{"tags": re})
		filter["$or"] = or
	}
	return filter
}

func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	return insert(ctx, s.col(ColContacts), c)
}

func (s *Store) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	return findOne[models.Contact](ctx, s.col(ColContacts), bson.M{"id": id})
}

func (s *Store) GetContactByEmail(ctx context.Context, email string) (*models.Contact, error) {
	return findOne[models.Contact](ctx, s.col(ColContacts), bson.M{"email": email})
}

func (s *Store) SaveContact(ctx context.Context, c *models.Contact) error {
	return replace(ctx, s.col(ColContacts), c.ID, c)
}

func (s *Store) DeleteContact(ctx context.Context, id string) error {
	if err := deleteOne(ctx, s.col(ColContacts), id); err != nil {
		return err
	}
	byContact := bson.M{"contact_id": id}
	for _, name := range []string{ColInteractions, ColContactAnalytics, ColEnrollments} {
		if _, err := s.col(name).DeleteMany(ctx, byContact); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) FindContacts(ctx context.Context, f store.ContactFilter) ([]models.Contact, error) {
	opts := pageOptions(f.Skip, f.Limit)
	if f.Sort == store.SortScore {
		opts.SetSort(bson.D{{Key: "lead_score", Value: -1}, {Key: "created_at", Value: -1}})
	} else {
		opts.SetSort(bson.D{{Key: "created_at", Value: -1}})
	}
	return findAll[models.Contact](ctx, s.col(ColContacts), ContactFilterBSON(f), opts)
}

func (s *Store) CountContacts(ctx context.Context, f store.ContactFilter) (int64, error) {
	return s.col(ColContacts).CountDocuments(ctx, ContactFilterBSON(f))
}

func (s *Store) GroupContacts(ctx context.Context, field store.GroupField) ([]models.GroupCount, error) {
	switch field {
	case store.GroupByStatus, store.GroupByLeadSource:
	default:
		return nil, fmt.Errorf("unsupported group field %q", field)
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$" + string(field), "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	cursor, err := s.col(ColContacts).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.GroupCount{}
	return out, cursor.All(ctx, &out)
}

func (s *Store) EngagementRates(ctx context.Context) (store.EngagementRates, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"email_opens": bson.M{"$gt": 0}, "total_interactions": bson.M{"$gt": 0}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        nil,
			"open_rate":  bson.M{"$avg": bson.M{"$divide": bson.A{"$email_opens", "$total_interactions"}}},
			"click_rate": bson.M{"$avg": bson.M{"$divide": bson.A{"$email_clicks", "$total_interactions"}}},
		}}},
	}
	var rates store.EngagementRates
	cursor, err := s.col(ColContacts).Aggregate(ctx, pipeline)
	if err != nil {
		return rates, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		OpenRate  float64 `bson:"open_rate"`
		ClickRate float64 `bson:"click_rate"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return rates, err
	}
	if len(rows) > 0 {
		rates.OpenRate = rows[0].OpenRate
		rates.ClickRate = rows[0].ClickRate
	}
	return rates, nil
}

// Interactions

func (s *Store) CreateInteraction(ctx context.Context, i *models.Interaction) error {
	return insert(ctx, s.col(ColInteractions), i)
}

func (s *Store) ListInteractions(ctx context.Context, contactID string, limit int) ([]models.Interaction, error) {
	opts := pageOptions(0, limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.Interaction](ctx, s.col(ColInteractions), bson.M{"contact_id": contactID}, opts)
}

func (s *Store) RecentInteractions(ctx context.Context, limit int) ([]models.Interaction, error) {
	opts := pageOptions(0, limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.Interaction](ctx, s.col(ColInteractions), bson.M{}, opts)
}

// Analytics

func (s *Store) IncrementContactAnalytics(ctx context.Context, d models.ContactAnalytics) error {
	update := bson.M{
		"$inc": bson.M{
			"email_opens":        d.EmailOpens,
			"email_clicks":       d.EmailClicks,
			"website_visits":     d.WebsiteVisits,
			"form_submissions":   d.FormSubmissions,
			"meetings_scheduled": d.MeetingsScheduled,
			"score_change":       d.ScoreChange,
		},
		"$setOnInsert": bson.M{"id": d.ID, "created_at": d.CreatedAt},
	}
	_, err := s.col(ColContactAnalytics).UpdateOne(ctx,
		bson.M{"contact_id": d.ContactID, "date": d.Date},
		update,
		options.Update().SetUpsert(true))
	return err
}

func (s *Store) ListContactAnalytics(ctx context.Context, contactID string, limit int) ([]models.ContactAnalytics, error) {
	opts := pageOptions(0, limit).SetSort(bson.D{{Key: "date", Value: -1}})
	return findAll[models.ContactAnalytics](ctx, s.col(ColContactAnalytics), bson.M{"contact_id": contactID}, opts)
}

// Templates

func (s *Store) CreateTemplate(ctx context.Context, t *models.EmailTemplate) error {
	return insert(ctx, s.col(ColTemplates), t)
}

func (s *Store) GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error) {
	return findOne[models.EmailTemplate](ctx, s.col(ColTemplates), bson.M{"id": id})
}

func (s *Store) GetTemplateByName(ctx context.Context, name string) (*models.EmailTemplate, error) {
	return findOne[models.EmailTemplate](ctx, s.col(ColTemplates), bson.M{"name": name})
}

func (s *Store) ListTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.EmailTemplate](ctx, s.col(ColTemplates), bson.M{}, opts)
}

func (s *Store) SaveTemplate(ctx context.Context, t *models.EmailTemplate) error {
	return replace(ctx, s.col(ColTemplates), t.ID, t)
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return deleteOne(ctx, s.col(ColTemplates), id)
}

// Campaigns

func (s *Store) CreateCampaign(ctx context.Context, c *models.Campaign) error {
	return insert(ctx, s.col(ColCampaigns), c)
}

func (s *Store) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	return findOne[models.Campaign](ctx, s.col(ColCampaigns), bson.M{"id": id})
}

func (s *Store) ListCampaigns(ctx context.Context, skip, limit int) ([]models.Campaign, error) {
	opts := pageOptions(skip, limit).SetSort(bson.D{{Key: "created_at", Value: -1}})
	return findAll[models.Campaign](ctx, s.col(ColCampaigns), bson.M{}, opts)
}

func (s *Store) CountCampaigns(ctx context.Context) (int64, error) {
	return s.col(ColCampaigns).CountDocuments(ctx, bson.M{})
}

func (s *Store) SaveCampaign(ctx context.Context, c *models.Campaign) error {
	return replace(ctx, s.col(ColCampaigns), c.ID, c)
}

func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	return deleteOne(ctx, s.col(ColCampaigns), id)
}

func (s *Store) MarkCampaignSent(ctx context.Context, id string, sentAt time.Time, emailsSent int) error {
	filter := bson.M{
		"id":     id,
		"status": bson.M{"$in": bson.A{models.CampaignStatusDraft, models.CampaignStatusScheduled}},
	}
	res, err := s.col(ColCampaigns).UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status":      models.CampaignStatusSent,
		"sent_at":     sentAt,
		"emails_sent": emailsSent,
		"updated_at":  sentAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetCampaign(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) SetCampaignDelivery(ctx context.Context, id string, delivered, failed int) error {
	return updateOne(ctx, s.col(ColCampaigns), id, bson.M{
		"emails_delivered": delivered,
		"emails_failed":    failed,
		"updated_at":       time.Now().UTC(),
	})
}

func (s *Store) SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	return updateOne(ctx, s.col(ColCampaigns), id, bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) FindDueScheduledCampaigns(ctx context.Context, now time.Time) ([]models.Campaign, error) {
	filter := bson.M{
		"status":       models.CampaignStatusScheduled,
		"scheduled_at": bson.M{"$ne": nil, "$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}})
	return findAll[models.Campaign](ctx, s.col(ColCampaigns), filter, opts)
}

// Sequences

func (s *Store) CreateSequence(ctx context.Context, q *models.EmailSequence) error {
	return insert(ctx, s.col(ColSequences), q)
}

func (s *Store) GetSequence(ctx context.Context, id string) (*models.EmailSequence, error) {
	return findOne[models.EmailSequence](ctx, s.col(ColSequences), bson.M{"id": id})
}

func (s *Store) GetSequenceByName(ctx context.Context, name string) (*models.EmailSequence, error) {
	return findOne[models.EmailSequence](ctx, s.col(ColSequences), bson.M{"name": name})
}

func (s *Store) ListSequences(ctx context.Context, activeOnly bool) ([]models.EmailSequence, error) {
	filter := bson.M{}
	if activeOnly {
		filter["status"] = models.AutomationActive
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "id", Value: 1}})
	return findAll[models.EmailSequence](ctx, s.col(ColSequences), filter, opts)
}

func (s *Store) CountSequences(ctx context.Context, status models.AutomationStatus) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	return s.col(ColSequences).CountDocuments(ctx, filter)
}

func (s *Store) SaveSequence(ctx context.Context, q *models.EmailSequence) error {
	return replace(ctx, s.col(ColSequences), q.ID, q)
}

func (s *Store) DeleteSequence(ctx context.Context, id string) error {
	return deleteOne(ctx, s.col(ColSequences), id)
}

// Enrollments

func (s *Store) CreateEnrollment(ctx context.Context, e *models.SequenceEnrollment) error {
	return insert(ctx, s.col(ColEnrollments), e)
}

func (s *Store) GetEnrollment(ctx context.Context, id string) (*models.SequenceEnrollment, error) {
	return findOne[models.SequenceEnrollment](ctx, s.col(ColEnrollments), bson.M{"id": id})
}

func (s *Store) FindActiveEnrollment(ctx context.Context, contactID, sequenceID string) (*models.SequenceEnrollment, error) {
	return findOne[models.SequenceEnrollment](ctx, s.col(ColEnrollments), bson.M{
		"contact_id":  contactID,
		"sequence_id": sequenceID,
		"is_active":   true,
	})
}

func (s *Store) ListEnrollments(ctx context.Context, f store.EnrollmentFilter) ([]models.SequenceEnrollment, error) {
	filter := bson.M{}
	if f.ContactID != "" {
		filter["contact_id"] = f.ContactID
	}
	if f.SequenceID != "" {
		filter["sequence_id"] = f.SequenceID
	}
	if f.ActiveOnly {
		filter["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "enrolled_at", Value: -1}})
	return findAll[models.SequenceEnrollment](ctx, s.col(ColEnrollments), filter, opts)
}

func (s *Store) FindDueEnrollments(ctx context.Context, now time.Time) ([]models.SequenceEnrollment, error) {
	filter := bson.M{
		"is_active":     true,
		"next_email_at": bson.M{"$ne": nil, "$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "next_email_at", Value: 1}})
	return findAll[models.SequenceEnrollment](ctx, s.col(ColEnrollments), filter, opts)
}

func (s *Store) SaveEnrollment(ctx context.Context, e *models.SequenceEnrollment) error {
	return replace(ctx, s.col(ColEnrollments), e.ID, e)
}

func (s *Store) DeactivateEnrollments(ctx context.Context, sequenceID string) (int64, error) {
	res, err := s.col(ColEnrollments).UpdateMany(ctx,
		bson.M{"sequence_id": sequenceID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "next_email_at": nil}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
