package services

import (
	"context"
	"errors"
	"time"

	"leadcrm/models"
	"leadcrm/store"
	"leadcrm/utils"
)

func (s *CRMService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	now := s.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var stats models.DashboardStats
	var err error

	if stats.TotalContacts, err = s.Store.CountContacts(ctx, store.ContactFilter{}); err != nil {
		return nil, err
	}
	if stats.NewContactsThisMonth, err = s.Store.CountContacts(ctx, store.ContactFilter{CreatedAfter: &monthStart}); err != nil {
		return nil, err
	}
	if stats.QualifiedLeads, err = s.countStatus(ctx, models.ContactStatusQualified); err != nil {
		return nil, err
	}
	if stats.Customers, err = s.countStatus(ctx, models.ContactStatusCustomer); err != nil {
		return nil, err
	}
	if stats.TotalCampaigns, err = s.Store.CountCampaigns(ctx); err != nil {
		return nil, err
	}
	if stats.ActiveAutomations, err = s.Store.CountSequences(ctx, models.AutomationActive); err != nil {
		return nil, err
	}

	rates, err := s.Store.EngagementRates(ctx)
	if err != nil {
		return nil, err
	}
	stats.AvgOpenRate = utils.Round2(rates.OpenRate * 100)
	stats.AvgClickRate = utils.Round2(rates.ClickRate * 100)

	return &stats, nil
}

func (s *CRMService) countStatus(ctx context.Context, status models.ContactStatus) (int64, error) {
	return s.Store.CountContacts(ctx, store.ContactFilter{Statuses: []models.ContactStatus{status}})
}

func (s *CRMService) LeadSourceStats(ctx context.Context) ([]models.LeadSourceStats, error) {
	groups, err := s.Store.GroupContacts(ctx, store.GroupByLeadSource)
	if err != nil {
		return nil, err
	}
	total := groupTotal(groups)
	out := make([]models.LeadSourceStats, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.LeadSourceStats{
			Source:     g.Key,
			Count:      g.Count,
			Percentage: percentage(g.Count, total),
		})
	}
	return out, nil
}

func (s *CRMService) ContactStatusStats(ctx context.Context) ([]models.ContactStatusStats, error) {
	groups, err := s.Store.GroupContacts(ctx, store.GroupByStatus)
	if err != nil {
		return nil, err
	}
	total := groupTotal(groups)
	out := make([]models.ContactStatusStats, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.ContactStatusStats{
			Status:     g.Key,
			Count:      g.Count,
			Percentage: percentage(g.Count, total),
		})
	}
	return out, nil
}

// RecentActivity returns the latest interactions across all contacts. Entries
// whose contact no longer exists are dropped.
func (s *CRMService) RecentActivity(ctx context.Context, limit int) ([]models.RecentActivity, error) {
	interactions, err := s.Store.RecentInteractions(ctx, limit)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	out := make([]models.RecentActivity, 0, len(interactions))
	for _, i := range interactions {
		name, ok := names[i.ContactID]
		if !ok {
			c, err := s.Store.GetContact(ctx, i.ContactID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					names[i.ContactID] = ""
					continue
				}
				return nil, err
			}
			name = c.FirstName + " " + c.LastName
			names[i.ContactID] = name
		}
		if name == "" {
			continue
		}
		out = append(out, models.RecentActivity{
			Type:        i.Type,
			Description: i.Description,
			ContactName: name,
			ContactID:   i.ContactID,
			Timestamp:   i.CreatedAt,
		})
	}
	return out, nil
}

func groupTotal(groups []models.GroupCount) int64 {
	var total int64
	for _, g := range groups {
		total += g.Count
	}
	return total
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return utils.Round2(float64(n) / float64(total) * 100)
}
