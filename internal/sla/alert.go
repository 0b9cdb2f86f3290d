package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/internal/workhours"
	"github.com/hrygo/slawatch/store"
)

// OnBreachCheck is the sla-timers handler for breach-check jobs. It re-checks
// elapsed working minutes against the chat's *current* schedule: if schedule
// edits moved the fence, it re-arms itself instead of alerting.
func (s *Service) OnBreachCheck(ctx context.Context, requestID int64) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err == store.ErrNotFound {
		slog.Warn("breach check for unknown request", "requestId", requestID)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		return nil
	}

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return errors.Wrapf(err, "failed to load chat %d", req.ChatID)
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

	if elapsed < threshold {
		delay, err := workhours.DelayUntilBreach(now, received, int(threshold), schedule)
		if err != nil {
			return errors.Wrapf(err, "failed to re-fence request %d", requestID)
		}
		if delay < time.Second {
			delay = time.Second
		}
		_, _, err = s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobBreachCheck,
			TimerPayload{RequestID: requestID},
			queue.Options{Delay: delay, JobID: BreachJobID(requestID), Attempts: 1},
		)
		if err != nil {
			return errors.Wrapf(err, "failed to re-enqueue breach check for request %d", requestID)
		}
		slog.Info("breach fence moved, re-armed", "requestId", requestID, "elapsed", elapsed, "threshold", threshold, "delay", delay)
		return nil
	}

	breached := true
	status := store.RequestEscalated
	nowTs := now.Unix()
	if _, err := s.store.UpdateClientRequest(ctx, &store.UpdateClientRequest{
		ID:          requestID,
		SlaBreached: &breached,
		Status:      &status,
		UpdatedTs:   &nowTs,
	}); err != nil {
		return errors.Wrapf(err, "failed to mark request %d breached", requestID)
	}

	return s.createAlerts(ctx, req, chat, store.AlertBreach, 0, elapsed)
}

// OnWarning is the sla-timers handler for warning jobs, fired at
// warningPercent of the threshold.
func (s *Service) OnWarning(ctx context.Context, requestID int64) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		return nil
	}

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return errors.Wrapf(err, "failed to load chat %d", req.ChatID)
	}
	schedule, err := s.resolveSchedule(ctx, chat)
	if err != nil {
		return err
	}

	now := s.now()
	elapsed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), now, schedule))
	return s.createAlerts(ctx, req, chat, store.AlertWarning, 0, elapsed)
}

// HandleEscalation is the sla-timers handler for escalation jobs: it creates
// the next level of alerts for a still-unresolved request.
func (s *Service) HandleEscalation(ctx context.Context, requestID int64, level int32) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		// Cancellation raced execution; re-verify and exit without effect.
		return nil
	}

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return errors.Wrapf(err, "failed to load chat %d", req.ChatID)
	}
	schedule, err := s.resolveSchedule(ctx, chat)
	if err != nil {
		return err
	}
	elapsed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), s.now(), schedule))

	return s.createAlerts(ctx, req, chat, store.AlertBreach, level, elapsed)
}

// createAlerts writes one alert row per recipient and enqueues a delivery job
// per alert. Duplicate rows (unique per request/type/level/recipient) mean a
// redelivered job already did this; they are skipped silently.
func (s *Service) createAlerts(ctx context.Context, req *store.ClientRequest, chat *store.Chat, alertType store.AlertType, level, elapsed int32) error {
	recipients := s.recipients(ctx, chat)
	if len(recipients) == 0 {
		slog.Error("no alert recipients configured, alert dropped",
			"requestId", req.ID,
			"chatId", req.ChatID,
			"alertType", alertType,
			"level", level,
		)
		return nil
	}

	nowTs := s.now().Unix()
	for _, managerID := range recipients {
		alert, err := s.store.CreateSlaAlert(ctx, &store.SlaAlert{
			RequestID:         req.ID,
			AlertType:         alertType,
			EscalationLevel:   level,
			MinutesElapsed:    elapsed,
			ManagerTelegramID: managerID,
			DeliveryStatus:    store.DeliveryPending,
			CreatedTs:         nowTs,
		})
		if err == store.ErrAlreadyExists {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "failed to create alert for request %d level %d", req.ID, level)
		}

		if _, _, err := s.queue.Enqueue(ctx, queue.QueueAlerts, JobSendAlert,
			AlertPayload{AlertID: alert.ID, RequestID: req.ID, Level: level},
			queue.Options{JobID: alertJobID(alert.ID)},
		); err != nil {
			return errors.Wrapf(err, "failed to enqueue delivery for alert %d", alert.ID)
		}
	}

	slog.Info("alerts created",
		"requestId", req.ID,
		"alertType", alertType,
		"level", level,
		"recipients", len(recipients),
		"minutesElapsed", elapsed,
	)
	return nil
}

func alertJobID(alertID int64) string {
	return fmt.Sprintf("alert-%d", alertID)
}

// CreateAlert writes a single manually requested alert and enqueues its
// delivery. Duplicates of an existing (type, level, recipient) row surface as
// store.ErrAlreadyExists.
func (s *Service) CreateAlert(ctx context.Context, requestID int64, alertType store.AlertType, level int32, managerID int64) (*store.SlaAlert, error) {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load request %d", requestID)
	}

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return nil, errors.Wrapf(err, "failed to load chat %d", req.ChatID)
	}
	schedule, err := s.resolveSchedule(ctx, chat)
	if err != nil {
		return nil, err
	}
	until := s.now()
	if req.ResponseTs != nil {
		until = time.Unix(*req.ResponseTs, 0)
	}
	elapsed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), until, schedule))

	alert, err := s.store.CreateSlaAlert(ctx, &store.SlaAlert{
		RequestID:         requestID,
		AlertType:         alertType,
		EscalationLevel:   level,
		MinutesElapsed:    elapsed,
		ManagerTelegramID: managerID,
		DeliveryStatus:    store.DeliveryPending,
		CreatedTs:         s.now().Unix(),
	})
	if err != nil {
		return nil, err
	}
	if _, _, err := s.queue.Enqueue(ctx, queue.QueueAlerts, JobSendAlert,
		AlertPayload{AlertID: alert.ID, RequestID: requestID, Level: level},
		queue.Options{JobID: alertJobID(alert.ID)},
	); err != nil {
		return nil, errors.Wrapf(err, "failed to enqueue delivery for alert %d", alert.ID)
	}
	return alert, nil
}

// ScheduleNextEscalation arms the level+1 escalation job after a successful
// delivery, bounded by maxEscalations.
func (s *Service) ScheduleNextEscalation(ctx context.Context, requestID int64, currentLevel int32) error {
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}
	next := currentLevel + 1
	if next > settings.MaxEscalations {
		return nil
	}

	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		return nil
	}

	_, _, err = s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobEscalation,
		EscalationPayload{RequestID: requestID, Level: next},
		queue.Options{
			Delay:    time.Duration(settings.EscalationIntervalMinutes) * time.Minute,
			JobID:    EscalationJobID(requestID, next),
			Attempts: 1,
		},
	)
	return errors.Wrapf(err, "failed to schedule escalation %d for request %d", next, requestID)
}

// ResolveAlert closes an alert chain at most once. The triggering alert and
// every other open alert of the request get the chosen action; all pending
// escalation jobs are cancelled; resolving actions also answer the request.
func (s *Service) ResolveAlert(ctx context.Context, alertID int64, action store.ResolvedAction, userID *int64) error {
	alert, err := s.store.GetSlaAlert(ctx, alertID)
	if err != nil {
		return errors.Wrapf(err, "failed to load alert %d", alertID)
	}

	nowTs := s.now().Unix()
	if _, err := s.store.UpdateSlaAlert(ctx, &store.UpdateSlaAlert{
		ID:             alertID,
		ResolvedAction: &action,
		AcknowledgedBy: userID,
		AcknowledgedTs: &nowTs,
	}); err != nil {
		if err == store.ErrAlreadyExists {
			return errors.Wrapf(err, "alert %d is already resolved", alertID)
		}
		return errors.Wrapf(err, "failed to resolve alert %d", alertID)
	}

	s.cancelEscalationJobs(ctx, alert.RequestID)
	s.closeOpenAlerts(ctx, alert.RequestID, action, userID)

	if action == store.ResolvedMarkResolved || action == store.ResolvedAccountantResponded {
		result, err := s.StopTimer(ctx, alert.RequestID, StopParams{RespondedBy: userID})
		if err != nil {
			return err
		}
		slog.Info("alert resolved",
			"alertId", alertID,
			"requestId", alert.RequestID,
			"action", action,
			"timer", result,
		)
	}
	return nil
}

// OnAccountantResponse tears down all deadline work for a request after the
// ingest path detected a resolving accountant message.
func (s *Service) OnAccountantResponse(ctx context.Context, requestID int64, respondedBy *int64) {
	s.cancelTimerJobs(ctx, requestID)
	s.cancelEscalationJobs(ctx, requestID)
	s.closeOpenAlerts(ctx, requestID, store.ResolvedAccountantResponded, respondedBy)
}

// cancelEscalationJobs enumerates levels 1..maxEscalations and cancels each.
// False returns are expected and ignored.
func (s *Service) cancelEscalationJobs(ctx context.Context, requestID int64) {
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}
	for level := int32(1); level <= settings.MaxEscalations; level++ {
		if _, err := s.queue.Cancel(ctx, queue.QueueSlaTimers, EscalationJobID(requestID, level)); err != nil {
			slog.Warn("failed to cancel escalation job", "requestId", requestID, "level", level, "error", err)
		}
	}
}

func (s *Service) closeOpenAlerts(ctx context.Context, requestID int64, action store.ResolvedAction, userID *int64) {
	alerts, err := s.store.ListSlaAlerts(ctx, &store.FindSlaAlert{RequestID: &requestID, OnlyUnresolved: true})
	if err != nil {
		slog.Warn("failed to list open alerts", "requestId", requestID, "error", err)
		return
	}
	nowTs := s.now().Unix()
	for _, alert := range alerts {
		if _, err := s.store.UpdateSlaAlert(ctx, &store.UpdateSlaAlert{
			ID:             alert.ID,
			ResolvedAction: &action,
			AcknowledgedBy: userID,
			AcknowledgedTs: &nowTs,
		}); err != nil && err != store.ErrAlreadyExists {
			slog.Warn("failed to close alert", "alertId", alert.ID, "error", err)
		}
	}
}
