package sla

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/internal/workhours"
	"github.com/hrygo/slawatch/store"
)

// RecoveryReport summarizes what startup recovery did.
type RecoveryReport struct {
	TotalPending  int
	Rescheduled   int
	Breached      int
	AlreadyActive int
	Failed        int
}

// Recover re-arms SLA timers after a restart. For every pending request with
// a started timer it either leaves the existing breach job alone, fires the
// breach path immediately when the deadline passed while the process was
// down, or re-schedules the check for the remaining working minutes.
func (s *Service) Recover(ctx context.Context) (*RecoveryReport, error) {
	pending := store.RequestPending
	started := true
	requests, err := s.store.ListClientRequests(ctx, &store.FindClientRequest{
		Status:       &pending,
		TimerStarted: &started,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending requests")
	}

	report := &RecoveryReport{TotalPending: len(requests)}
	for _, req := range requests {
		if err := s.recoverRequest(ctx, req, report); err != nil {
			report.Failed++
			slog.Error("failed to recover request", "requestId", req.ID, "error", err)
		}
	}

	slog.Info("sla recovery finished",
		"totalPending", report.TotalPending,
		"rescheduled", report.Rescheduled,
		"breached", report.Breached,
		"alreadyActive", report.AlreadyActive,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *Service) recoverRequest(ctx context.Context, req *store.ClientRequest, report *RecoveryReport) error {
	job, err := s.queue.Get(ctx, queue.QueueSlaTimers, BreachJobID(req.ID))
	if err != nil {
		return errors.Wrap(err, "failed to check breach job")
	}
	if job != nil {
		report.AlreadyActive++
		return nil
	}

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return errors.Wrap(err, "failed to load chat")
	}
	schedule, err := s.resolveSchedule(ctx, chat)
	if err != nil {
		return err
	}

	threshold := req.SlaThresholdMinutes
	if threshold <= 0 {
		threshold = s.resolveThreshold(ctx, chat)
	}
	now := s.now()
	received := time.Unix(req.ReceivedTs, 0)
	elapsed := int32(workhours.WorkingMinutes(received, now, schedule))

	if elapsed >= threshold {
		if err := s.OnBreachCheck(ctx, req.ID); err != nil {
			return err
		}
		report.Breached++
		return nil
	}

	delay, err := workhours.DelayUntilBreach(now, received, int(threshold), schedule)
	if err != nil {
		return errors.Wrap(err, "failed to compute recovery delay")
	}
	if delay < time.Second {
		delay = time.Second
	}
	if _, _, err := s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobBreachCheck,
		TimerPayload{RequestID: req.ID},
		queue.Options{Delay: delay, JobID: BreachJobID(req.ID), Attempts: 1},
	); err != nil {
		return errors.Wrap(err, "failed to re-enqueue breach check")
	}
	report.Rescheduled++
	return nil
}

// HandleTimerJob dispatches sla-timers queue jobs by name.
func (s *Service) HandleTimerJob(ctx context.Context, job *store.Job) error {
	switch job.Name {
	case JobBreachCheck:
		var payload TimerPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrapf(err, "bad breach-check payload for job %s", job.JobID)
		}
		return s.OnBreachCheck(ctx, payload.RequestID)
	case JobWarning:
		var payload TimerPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrapf(err, "bad warning payload for job %s", job.JobID)
		}
		return s.OnWarning(ctx, payload.RequestID)
	case JobEscalation:
		var payload EscalationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrapf(err, "bad escalation payload for job %s", job.JobID)
		}
		return s.HandleEscalation(ctx, payload.RequestID, payload.Level)
	default:
		slog.Warn("unknown timer job", "job", job.Name, "jobId", job.JobID)
		return nil
	}
}
