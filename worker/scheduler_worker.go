package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"leadcrm/models"
	"leadcrm/utils"
)

// SequenceProcessor advances due sequence enrollments
type SequenceProcessor interface {
	ProcessDueEnrollments(ctx context.Context) (models.SweepReport, error)
}

// ScheduledCampaignSender sends scheduled campaigns whose time has come
type ScheduledCampaignSender interface {
	SendDueScheduledCampaigns(ctx context.Context) (int, error)
}

// SchedulerWorker periodically sweeps sequences and scheduled campaigns
type SchedulerWorker struct {
	Sequences    SequenceProcessor
	Campaigns    ScheduledCampaignSender
	Interval     time.Duration
	InitialDelay time.Duration
	Logger       *logrus.Entry
}

func NewSchedulerWorker(seq SequenceProcessor, camp ScheduledCampaignSender, interval time.Duration) *SchedulerWorker {
	return &SchedulerWorker{
		Sequences:    seq,
		Campaigns:    camp,
		Interval:     interval,
		InitialDelay: 10 * time.Second,
		Logger:       utils.GetLogger("worker").WithField("component", "scheduler"),
	}
}

func (w *SchedulerWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	select {
	case <-ctx.Done():
		return
	case <-time.After(w.InitialDelay):
	}

	w.Logger.WithField("interval", w.Interval.String()).Info("Scheduler worker started")
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep of each kind. Errors are logged, never returned.
func (w *SchedulerWorker) RunOnce(ctx context.Context) {
	if w.Sequences != nil {
		report, err := w.Sequences.ProcessDueEnrollments(ctx)
		if err != nil {
			utils.LogError("sequence_sweep_failed", err, nil)
		} else if report.Due > 0 {
			w.Logger.WithFields(logrus.Fields{
				"due":       report.Due,
				"sent":      report.Sent,
				"failed":    report.Failed,
				"completed": report.Completed,
				"skipped":   report.Skipped,
				"errors":    report.Errors,
			}).Info("Processed due enrollments")
		}
	}

	if w.Campaigns != nil {
		n, err := w.Campaigns.SendDueScheduledCampaigns(ctx)
		if err != nil {
			utils.LogError("scheduled_campaigns_failed", err, nil)
		} else if n > 0 {
			w.Logger.WithField("campaigns", n).Info("Dispatched scheduled campaigns")
		}
	}
}
