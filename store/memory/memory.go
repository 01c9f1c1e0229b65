// Package memory is an in-process Store used for local runs and tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"leadcrm/models"
	"leadcrm/store"
)

type Store struct {
	mu           sync.RWMutex
	contacts     map[string]*models.Contact
	interactions []models.Interaction
	analytics    map[string]*models.ContactAnalytics
	templates    map[string]*models.EmailTemplate
	campaigns    map[string]*models.Campaign
	sequences    map[string]*models.EmailSequence
	enrollments  map[string]*models.SequenceEnrollment
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		contacts:    make(map[string]*models.Contact),
		analytics:   make(map[string]*models.ContactAnalytics),
		templates:   make(map[string]*models.EmailTemplate),
		campaigns:   make(map[string]*models.Campaign),
		sequences:   make(map[string]*models.EmailSequence),
		enrollments: make(map[string]*models.SequenceEnrollment),
		now:         time.Now,
	}
}

func (s *Store) Close(context.Context) error { return nil }

func cloneContact(c *models.Contact) *models.Contact {
	out := *c
	out.Tags = slices.Clone(c.Tags)
	out.CustomFields = maps.Clone(c.CustomFields)
	return &out
}

// Contacts

func (s *Store) CreateContact(_ context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; ok {
		return store.ErrDuplicate
	}
	for _, existing := range s.contacts {
		if existing.Email == c.Email {
			return store.ErrDuplicate
		}
	}
	s.contacts[c.ID] = cloneContact(c)
	return nil
}

func (s *Store) GetContact(_ context.Context, id string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneContact(c), nil
}

func (s *Store) GetContactByEmail(_ context.Context, email string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contacts {
		if c.Email == email {
			return cloneContact(c), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SaveContact(_ context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; !ok {
		return store.ErrNotFound
	}
	for id, existing := range s.contacts {
		if id != c.ID && existing.Email == c.Email {
			return store.ErrDuplicate
		}
	}
	s.contacts[c.ID] = cloneContact(c)
	return nil
}

func (s *Store) DeleteContact(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.contacts, id)
	s.interactions = slices.DeleteFunc(s.interactions, func(i models.Interaction) bool {
		return i.ContactID == id
	})
	for key, a := range s.analytics {
		if a.ContactID == id {
			delete(s.analytics, key)
		}
	}
	for key, e := range s.enrollments {
		if e.ContactID == id {
			delete(s.enrollments, key)
		}
	}
	return nil
}

func (s *Store) matchContacts(f store.ContactFilter) []models.Contact {
	var out []models.Contact
	for _, c := range s.contacts {
		if store.MatchContact(c, f) {
			out = append(out, *cloneContact(c))
		}
	}
	return out
}

func (s *Store) FindContacts(_ context.Context, f store.ContactFilter) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.matchContacts(f)
	sort.SliceStable(out, func(i, j int) bool {
		if f.Sort == store.SortScore && out[i].LeadScore != out[j].LeadScore {
			return out[i].LeadScore > out[j].LeadScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	lo, hi := store.Page(len(out), f.Skip, f.Limit)
	return out[lo:hi], nil
}

func (s *Store) CountContacts(_ context.Context, f store.ContactFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, c := range s.contacts {
		if store.MatchContact(c, f) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GroupContacts(_ context.Context, field store.GroupField) ([]models.GroupCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[string]int64{}
	for _, c := range s.contacts {
		switch field {
		case store.GroupByStatus:
			counts[string(c.Status)]++
		case store.GroupByLeadSource:
			counts[string(c.LeadSource)]++
		}
	}
	out := make([]models.GroupCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.GroupCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func (s *Store) EngagementRates(context.Context) (store.EngagementRates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rates store.EngagementRates
	var n int
	for _, c := range s.contacts {
		if c.EmailOpens <= 0 || c.TotalInteractions <= 0 {
			continue
		}
		rates.OpenRate += float64(c.EmailOpens) / float64(c.TotalInteractions)
		rates.ClickRate += float64(c.EmailClicks) / float64(c.TotalInteractions)
		n++
	}
	if n > 0 {
		rates.OpenRate /= float64(n)
		rates.ClickRate /= float64(n)
	}
	return rates, nil
}

// Interactions

func (s *Store) CreateInteraction(_ context.Context, i *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[i.ContactID]; !ok {
		return store.ErrNotFound
	}
	cp := *i
	cp.Metadata = maps.Clone(i.Metadata)
	s.interactions = append(s.interactions, cp)
	return nil
}

// newestFirst orders by creation time; ties keep the later insert first.
func newestFirst(list []models.Interaction) {
	slices.Reverse(list)
	sort.SliceStable(list, func(a, b int) bool {
		return list[a].CreatedAt.After(list[b].CreatedAt)
	})
}

func (s *Store) ListInteractions(_ context.Context, contactID string, limit int) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Interaction
	for _, i := range s.interactions {
		if i.ContactID == contactID {
			out = append(out, i)
		}
	}
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecentInteractions(_ context.Context, limit int) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.interactions)
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Analytics

func (s *Store) IncrementContactAnalytics(_ context.Context, d models.ContactAnalytics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.ContactID + "/" + d.Date
	row, ok := s.analytics[key]
	if !ok {
		cp := d
		s.analytics[key] = &cp
		return nil
	}
	row.EmailOpens += d.EmailOpens
	row.EmailClicks += d.EmailClicks
	row.WebsiteVisits += d.WebsiteVisits
	row.FormSubmissions += d.FormSubmissions
	row.MeetingsScheduled += d.MeetingsScheduled
	row.ScoreChange += d.ScoreChange
	return nil
}

func (s *Store) ListContactAnalytics(_ context.Context, contactID string, limit int) ([]models.ContactAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ContactAnalytics
	for _, a := range s.analytics {
		if a.ContactID == contactID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Templates

func (s *Store) CreateTemplate(_ context.Context, t *models.EmailTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (*models.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTemplateByName(_ context.Context, name string) (*models.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTemplates(context.Context) ([]models.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EmailTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveTemplate(_ context.Context, t *models.EmailTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[t.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *t
	s.templates[t.ID] = &cp
	return nil
}

func (s *Store) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.templates, id)
	return nil
}

// Campaigns

func cloneCampaign(c *models.Campaign) *models.Campaign {
	out := *c
	out.TargetTags = slices.Clone(c.TargetTags)
	out.TargetStatus = slices.Clone(c.TargetStatus)
	out.ExcludeTags = slices.Clone(c.ExcludeTags)
	return &out
}

func (s *Store) CreateCampaign(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; ok {
		return store.ErrDuplicate
	}
	s.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (s *Store) GetCampaign(_ context.Context, id string) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (s *Store) ListCampaigns(_ context.Context, skip, limit int) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, *cloneCampaign(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	lo, hi := store.Page(len(out), skip, limit)
	return out[lo:hi], nil
}

func (s *Store) CountCampaigns(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.campaigns)), nil
}

func (s *Store) SaveCampaign(_ context.Context, c *models.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[c.ID]; !ok {
		return store.ErrNotFound
	}
	s.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (s *Store) DeleteCampaign(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.campaigns[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.campaigns, id)
	return nil
}

func (s *Store) MarkCampaignSent(_ context.Context, id string, sentAt time.Time, emailsSent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if !c.Status.Sendable() {
		return store.ErrConflict
	}
	c.Status = models.CampaignStatusSent
	c.SentAt = &sentAt
	c.EmailsSent = emailsSent
	c.UpdatedAt = sentAt
	return nil
}

func (s *Store) SetCampaignDelivery(_ context.Context, id string, delivered, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	c.EmailsDelivered = delivered
	c.EmailsFailed = failed
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetCampaignStatus(_ context.Context, id string, status models.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) FindDueScheduledCampaigns(_ context.Context, now time.Time) ([]models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Campaign
	for _, c := range s.campaigns {
		if c.Status == models.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, *cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

// Sequences

func cloneSequence(q *models.EmailSequence) *models.EmailSequence {
	out := *q
	out.TriggerTags = slices.Clone(q.TriggerTags)
	out.TriggerStatus = slices.Clone(q.TriggerStatus)
	out.Steps = slices.Clone(q.Steps)
	return &out
}

func (s *Store) CreateSequence(_ context.Context, q *models.EmailSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[q.ID]; ok {
		return store.ErrDuplicate
	}
	s.sequences[q.ID] = cloneSequence(q)
	return nil
}

func (s *Store) GetSequence(_ context.Context, id string) (*models.EmailSequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.sequences[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSequence(q), nil
}

func (s *Store) GetSequenceByName(_ context.Context, name string) (*models.EmailSequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.sequences {
		if q.Name == name {
			return cloneSequence(q), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListSequences(_ context.Context, activeOnly bool) ([]models.EmailSequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EmailSequence
	for _, q := range s.sequences {
		if activeOnly && q.Status != models.AutomationActive {
			continue
		}
		out = append(out, *cloneSequence(q))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountSequences(_ context.Context, status models.AutomationStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, q := range s.sequences {
		if status == "" || q.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) SaveSequence(_ context.Context, q *models.EmailSequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[q.ID]; !ok {
		return store.ErrNotFound
	}
	s.sequences[q.ID] = cloneSequence(q)
	return nil
}

func (s *Store) DeleteSequence(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sequences[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sequences, id)
	return nil
}

// Enrollments

func (s *Store) CreateEnrollment(_ context.Context, e *models.SequenceEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; ok {
		return store.ErrDuplicate
	}
	if e.IsActive {
		for _, existing := range s.enrollments {
			if existing.IsActive && existing.ContactID == e.ContactID && existing.SequenceID == e.SequenceID {
				return store.ErrDuplicate
			}
		}
	}
	cp := *e
	s.enrollments[e.ID] = &cp
	return nil
}

func (s *Store) GetEnrollment(_ context.Context, id string) (*models.SequenceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) FindActiveEnrollment(_ context.Context, contactID, sequenceID string) (*models.SequenceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.enrollments {
		if e.IsActive && e.ContactID == contactID && e.SequenceID == sequenceID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListEnrollments(_ context.Context, f store.EnrollmentFilter) ([]models.SequenceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SequenceEnrollment
	for _, e := range s.enrollments {
		if f.ContactID != "" && e.ContactID != f.ContactID {
			continue
		}
		if f.SequenceID != "" && e.SequenceID != f.SequenceID {
			continue
		}
		if f.ActiveOnly && !e.IsActive {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrolledAt.After(out[j].EnrolledAt) })
	return out, nil
}

func (s *Store) FindDueEnrollments(_ context.Context, now time.Time) ([]models.SequenceEnrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SequenceEnrollment
	for _, e := range s.enrollments {
		if e.IsActive && e.NextEmailAt != nil && !e.NextEmailAt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextEmailAt.Before(*out[j].NextEmailAt) })
	return out, nil
}

func (s *Store) SaveEnrollment(_ context.Context, e *models.SequenceEnrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *e
	s.enrollments[e.ID] = &cp
	return nil
}

func (s *Store) DeactivateEnrollments(_ context.Context, sequenceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, e := range s.enrollments {
		if e.SequenceID == sequenceID && e.IsActive {
			e.IsActive = false
			e.NextEmailAt = nil
			n++
		}
	}
	return n, nil
}
