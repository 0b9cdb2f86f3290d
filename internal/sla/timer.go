package sla

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/internal/workhours"
	"github.com/hrygo/slawatch/store"
)

// StopResult reports the outcome of a StopTimer call.
type StopResult string

const (
	StopStopped        StopResult = "stopped"
	StopAlreadyStopped StopResult = "already_stopped"
)

// StopParams carries the resolving response.
type StopParams struct {
	RespondedBy       *int64
	ResponseMessageID *int64
	ResponseTs        int64
}

// Status is the live timer view of a request.
type Status struct {
	ElapsedWorkingMinutes int32
	RemainingMinutes      int32
	ThresholdMinutes      int32
	Breached              bool
	TimerStartedTs        *int64
}

// StartTimer arms the breach-check (and optional warning) jobs for a pending
// request. Deterministic job ids make repeated calls coalesce.
func (s *Service) StartTimer(ctx context.Context, requestID int64) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if req.Status != store.RequestPending {
		return errors.Errorf("cannot start timer for request %d in status %s", requestID, req.Status)
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
	received := time.Unix(req.ReceivedTs, 0)
	threshold := req.SlaThresholdMinutes
	if threshold <= 0 {
		threshold = s.resolveThreshold(ctx, chat)
	}

	nowTs := now.Unix()
	if _, err := s.store.UpdateClientRequest(ctx, &store.UpdateClientRequest{
		ID:                requestID,
		SlaTimerStartedTs: &nowTs,
		UpdatedTs:         &nowTs,
	}); err != nil {
		return errors.Wrapf(err, "failed to record timer start for request %d", requestID)
	}

	delay, err := workhours.DelayUntilBreach(now, received, int(threshold), schedule)
	if err != nil {
		return errors.Wrapf(err, "failed to compute breach delay for request %d", requestID)
	}
	if _, _, err := s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobBreachCheck,
		TimerPayload{RequestID: requestID},
		queue.Options{Delay: delay, JobID: BreachJobID(requestID), Attempts: 1},
	); err != nil {
		return errors.Wrapf(err, "failed to enqueue breach check for request %d", requestID)
	}

	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}
	if wp := settings.WarningPercent; wp > 0 && wp < 100 {
		warnThreshold := threshold * wp / 100
		if warnThreshold > 0 {
			warnDelay, err := workhours.DelayUntilBreach(now, received, int(warnThreshold), schedule)
			if err != nil {
				return errors.Wrapf(err, "failed to compute warning delay for request %d", requestID)
			}
			if _, _, err := s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobWarning,
				TimerPayload{RequestID: requestID},
				queue.Options{Delay: warnDelay, JobID: WarnJobID(requestID), Attempts: 1},
			); err != nil {
				return errors.Wrapf(err, "failed to enqueue warning for request %d", requestID)
			}
		}
	}

	slog.Info("sla timer started",
		"requestId", requestID,
		"chatId", req.ChatID,
		"thresholdMinutes", threshold,
		"breachDelay", delay,
	)
	return nil
}

// StopTimer resolves a request with an accountant response. Idempotent: a
// second call reports already_stopped and changes nothing.
func (s *Service) StopTimer(ctx context.Context, requestID int64, params StopParams) (StopResult, error) {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return "", errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		return StopAlreadyStopped, nil
	}

	s.cancelTimerJobs(ctx, requestID)

	chat, err := s.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		return "", errors.Wrapf(err, "failed to load chat %d", req.ChatID)
	}
	schedule, err := s.resolveSchedule(ctx, chat)
	if err != nil {
		return "", err
	}

	responseTs := params.ResponseTs
	if responseTs == 0 {
		responseTs = s.now().Unix()
	}
	elapsed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), time.Unix(responseTs, 0), schedule))

	threshold := req.SlaThresholdMinutes
	if threshold <= 0 {
		threshold = s.resolveThreshold(ctx, chat)
	}
	breached := req.SlaBreached || elapsed >= threshold

	status := store.RequestAnswered
	nowTs := s.now().Unix()
	if _, err := s.store.UpdateClientRequest(ctx, &store.UpdateClientRequest{
		ID:                  requestID,
		Status:              &status,
		ResponseTs:          &responseTs,
		ResponseTimeMinutes: &elapsed,
		SlaWorkingMinutes:   &elapsed,
		ResponseMessageID:   params.ResponseMessageID,
		RespondedBy:         params.RespondedBy,
		SlaBreached:         &breached,
		ClearTimerPaused:    true,
		UpdatedTs:           &nowTs,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to resolve request %d", requestID)
	}

	slog.Info("sla timer stopped",
		"requestId", requestID,
		"responseTimeMinutes", elapsed,
		"breached", breached,
	)
	return StopStopped, nil
}

// PauseTimer parks an open request: the deadline jobs are cancelled and the
// pause instant recorded. Reserved for explicit waiting-on-client transitions.
func (s *Service) PauseTimer(ctx context.Context, requestID int64) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if !req.Status.IsOpen() {
		return errors.Errorf("cannot pause resolved request %d", requestID)
	}
	if req.SlaTimerPausedTs != nil {
		return nil
	}

	s.cancelTimerJobs(ctx, requestID)

	nowTs := s.now().Unix()
	status := store.RequestWaitingClient
	_, err = s.store.UpdateClientRequest(ctx, &store.UpdateClientRequest{
		ID:               requestID,
		Status:           &status,
		SlaTimerPausedTs: &nowTs,
		UpdatedTs:        &nowTs,
	})
	return errors.Wrapf(err, "failed to pause request %d", requestID)
}

// ResumeTimer re-arms the deadline jobs of a paused request. Working minutes
// accrued before the pause still count; the pause gap does not.
func (s *Service) ResumeTimer(ctx context.Context, requestID int64) error {
	req, err := s.store.GetClientRequest(ctx, requestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", requestID)
	}
	if req.SlaTimerPausedTs == nil {
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
	consumed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), time.Unix(*req.SlaTimerPausedTs, 0), schedule))
	remaining := threshold - consumed
	if remaining < 1 {
		remaining = 1
	}

	now := s.now()
	delay, err := workhours.DelayUntilBreach(now, now, int(remaining), schedule)
	if err != nil {
		return errors.Wrapf(err, "failed to compute resume delay for request %d", requestID)
	}

	// Cancel-then-schedule pair: tolerate either keep-existing or replace.
	s.cancelTimerJobs(ctx, requestID)
	if _, _, err := s.queue.Enqueue(ctx, queue.QueueSlaTimers, JobBreachCheck,
		TimerPayload{RequestID: requestID},
		queue.Options{Delay: delay, JobID: BreachJobID(requestID), Attempts: 1},
	); err != nil {
		return errors.Wrapf(err, "failed to re-enqueue breach check for request %d", requestID)
	}

	nowTs := now.Unix()
	status := store.RequestInProgress
	_, err = s.store.UpdateClientRequest(ctx, &store.UpdateClientRequest{
		ID:               requestID,
		Status:           &status,
		ClearTimerPaused: true,
		UpdatedTs:        &nowTs,
	})
	return errors.Wrapf(err, "failed to resume request %d", requestID)
}

// SlaStatus reports elapsed and remaining working minutes for a request.
func (s *Service) SlaStatus(ctx context.Context, requestID int64) (*Status, error) {
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

	threshold := req.SlaThresholdMinutes
	if threshold <= 0 {
		threshold = s.resolveThreshold(ctx, chat)
	}

	until := s.now()
	if req.ResponseTs != nil {
		until = time.Unix(*req.ResponseTs, 0)
	} else if req.SlaTimerPausedTs != nil {
		until = time.Unix(*req.SlaTimerPausedTs, 0)
	}
	elapsed := int32(workhours.WorkingMinutes(time.Unix(req.ReceivedTs, 0), until, schedule))

	remaining := threshold - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		ElapsedWorkingMinutes: elapsed,
		RemainingMinutes:      remaining,
		ThresholdMinutes:      threshold,
		Breached:              req.SlaBreached || elapsed >= threshold,
		TimerStartedTs:        req.SlaTimerStartedTs,
	}, nil
}

// ActiveTimers lists open requests with an armed timer.
func (s *Service) ActiveTimers(ctx context.Context) ([]*store.ClientRequest, error) {
	started := true
	return s.store.ListClientRequests(ctx, &store.FindClientRequest{
		OnlyOpen:     true,
		TimerStarted: &started,
	})
}

// cancelTimerJobs cancels the breach and warning jobs. Best-effort: a false
// return just means the job already ran or never existed.
func (s *Service) cancelTimerJobs(ctx context.Context, requestID int64) {
	for _, jobID := range []string{BreachJobID(requestID), WarnJobID(requestID)} {
		if _, err := s.queue.Cancel(ctx, queue.QueueSlaTimers, jobID); err != nil {
			slog.Warn("failed to cancel timer job", "requestId", requestID, "jobId", jobID, "error", err)
		}
	}
}
