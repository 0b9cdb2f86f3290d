// Package sla is the engine core: it turns inbound chat events into tracked
// client requests, computes working-time deadlines, schedules and cancels
// deadline jobs, resolves timers on accountant responses, and drives the
// escalation state machine.
package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/classifier"
	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/internal/workhours"
	"github.com/hrygo/slawatch/store"
)

// Job names carried on the queues. Handlers dispatch on these.
const (
	JobBreachCheck = "breach-check"
	JobWarning     = "warning"
	JobEscalation  = "escalation"
	JobSendAlert   = "send-alert"
)

// TimerPayload is the payload of breach-check and warning jobs.
type TimerPayload struct {
	RequestID int64 `json:"requestId"`
}

// EscalationPayload is the payload of escalation jobs.
type EscalationPayload struct {
	RequestID int64 `json:"requestId"`
	Level     int32 `json:"level"`
}

// AlertPayload is the payload of delivery jobs on the alerts queue.
type AlertPayload struct {
	AlertID   int64 `json:"alertId"`
	RequestID int64 `json:"requestId"`
	Level     int32 `json:"level"`
}

// Deterministic job ids: repeated enqueues coalesce, and any handler can
// cancel all deadline work for a request by reconstructing the ids.
func BreachJobID(requestID int64) string {
	return fmt.Sprintf("sla-%d", requestID)
}

func WarnJobID(requestID int64) string {
	return fmt.Sprintf("sla-warn-%d", requestID)
}

func EscalationJobID(requestID int64, level int32) string {
	return fmt.Sprintf("escalation-%d-%d", requestID, level)
}

// Store is the persistence surface the engine needs.
type Store interface {
	GetChat(ctx context.Context, id int64) (*store.Chat, error)
	ListWorkingSchedules(ctx context.Context, find *store.FindWorkingSchedule) ([]*store.WorkingSchedule, error)
	ListHolidays(ctx context.Context, find *store.FindHoliday) ([]*store.Holiday, error)
	GetGlobalSettings(ctx context.Context) (*store.GlobalSettings, error)

	CreateChatMessage(ctx context.Context, create *store.ChatMessage) (*store.ChatMessage, error)
	GetLatestChatMessage(ctx context.Context, chatID, messageID int64) (*store.ChatMessage, error)

	CreateClientRequest(ctx context.Context, create *store.ClientRequest) (*store.ClientRequest, error)
	GetClientRequest(ctx context.Context, id int64) (*store.ClientRequest, error)
	ListClientRequests(ctx context.Context, find *store.FindClientRequest) ([]*store.ClientRequest, error)
	UpdateClientRequest(ctx context.Context, update *store.UpdateClientRequest) (*store.ClientRequest, error)

	CreateSlaAlert(ctx context.Context, create *store.SlaAlert) (*store.SlaAlert, error)
	GetSlaAlert(ctx context.Context, id int64) (*store.SlaAlert, error)
	ListSlaAlerts(ctx context.Context, find *store.FindSlaAlert) ([]*store.SlaAlert, error)
	UpdateSlaAlert(ctx context.Context, update *store.UpdateSlaAlert) (*store.SlaAlert, error)
}

// Classifier is the cascade contract the ingest path consumes.
type Classifier interface {
	Classify(ctx context.Context, text string) (*classifier.Result, error)
}

// Service is the SLA engine.
type Service struct {
	store      Store
	queue      *queue.Queue
	classifier Classifier
	exporter   *metrics.Exporter
	now        func() time.Time
}

func NewService(st Store, q *queue.Queue, cl Classifier, exporter *metrics.Exporter) *Service {
	return &Service{
		store:      st,
		queue:      q,
		classifier: cl,
		exporter:   exporter,
		now:        time.Now,
	}
}

// resolveSchedule builds the working-hours schedule for a chat: chat-level
// rows when present, else the global settings, else hard-coded defaults.
func (s *Service) resolveSchedule(ctx context.Context, chat *store.Chat) (workhours.Schedule, error) {
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}

	if chat != nil && chat.Is24x7 {
		return workhours.Schedule{Always: true}, nil
	}

	schedule := workhours.Schedule{
		Days:     map[int]workhours.Window{},
		Holidays: map[string]struct{}{},
	}
	tz := settings.DefaultTimezone

	var rows []*store.WorkingSchedule
	if chat != nil {
		rows, err = s.store.ListWorkingSchedules(ctx, &store.FindWorkingSchedule{ChatID: &chat.ID})
		if err != nil {
			return schedule, errors.Wrap(err, "failed to list working schedules")
		}
	}
	if len(rows) > 0 {
		for _, row := range rows {
			start, err := workhours.ParseClock(row.StartTime)
			if err != nil {
				return schedule, errors.Wrapf(err, "bad schedule row for chat %d", row.ChatID)
			}
			end, err := workhours.ParseClock(row.EndTime)
			if err != nil {
				return schedule, errors.Wrapf(err, "bad schedule row for chat %d", row.ChatID)
			}
			schedule.Days[int(row.Weekday)] = workhours.Window{Start: start, End: end}
			if row.Timezone != "" {
				tz = row.Timezone
			}
		}
	} else {
		start, err := workhours.ParseClock(settings.WorkStartTime)
		if err != nil {
			return schedule, errors.Wrap(err, "bad global work start time")
		}
		end, err := workhours.ParseClock(settings.WorkEndTime)
		if err != nil {
			return schedule, errors.Wrap(err, "bad global work end time")
		}
		for _, day := range settings.WorkingDays {
			schedule.Days[int(day)] = workhours.Window{Start: start, End: end}
		}
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return schedule, errors.Wrapf(err, "unknown timezone %q", tz)
	}
	schedule.Location = loc

	var chatID *int64
	if chat != nil {
		chatID = &chat.ID
	}
	holidays, err := s.store.ListHolidays(ctx, &store.FindHoliday{ChatID: chatID})
	if err != nil {
		return schedule, errors.Wrap(err, "failed to list holidays")
	}
	for _, h := range holidays {
		schedule.Holidays[h.Date] = struct{}{}
	}

	return schedule, nil
}

// resolveThreshold returns the chat's SLA threshold, falling back to the
// global default.
func (s *Service) resolveThreshold(ctx context.Context, chat *store.Chat) int32 {
	if chat != nil && chat.SlaThresholdMinutes > 0 {
		return chat.SlaThresholdMinutes
	}
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		return store.DefaultGlobalSettings().SlaThresholdMinutes
	}
	return settings.SlaThresholdMinutes
}

// recipients resolves the alert recipient chain: chat managers, then global
// managers. An empty result means alerts cannot be delivered at all.
func (s *Service) recipients(ctx context.Context, chat *store.Chat) []int64 {
	if chat != nil && len(chat.ManagerTelegramIDs) > 0 {
		return chat.ManagerTelegramIDs
	}
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		return nil
	}
	return settings.GlobalManagerIDs
}
