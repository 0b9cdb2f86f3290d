package sla

import (
	"context"
	"sort"
	"time"

	"github.com/hrygo/slawatch/internal/classifier"
	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/store"
)

// fakeStore is an in-memory Store plus the queue's persistence surface, with
// the same uniqueness and ordering behavior as the postgres driver.
type fakeStore struct {
	nextID    int64
	chats     map[int64]*store.Chat
	schedules []*store.WorkingSchedule
	holidays  []*store.Holiday
	settings  *store.GlobalSettings
	messages  []*store.ChatMessage
	requests  map[int64]*store.ClientRequest
	alerts    map[int64]*store.SlaAlert
	jobs      map[int64]*store.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chats:    map[int64]*store.Chat{},
		settings: store.DefaultGlobalSettings(),
		requests: map[int64]*store.ClientRequest{},
		alerts:   map[int64]*store.SlaAlert{},
		jobs:     map[int64]*store.Job{},
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) GetChat(_ context.Context, id int64) (*store.Chat, error) {
	chat, ok := f.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeStore) ListWorkingSchedules(_ context.Context, find *store.FindWorkingSchedule) ([]*store.WorkingSchedule, error) {
	rows := make([]*store.WorkingSchedule, 0)
	for _, row := range f.schedules {
		if find.ChatID != nil && row.ChatID != *find.ChatID {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeStore) ListHolidays(_ context.Context, find *store.FindHoliday) ([]*store.Holiday, error) {
	rows := make([]*store.Holiday, 0)
	for _, row := range f.holidays {
		if find.ChatID != nil && row.ChatID != nil && *row.ChatID != *find.ChatID {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeStore) GetGlobalSettings(context.Context) (*store.GlobalSettings, error) {
	return f.settings, nil
}

func (f *fakeStore) CreateChatMessage(_ context.Context, create *store.ChatMessage) (*store.ChatMessage, error) {
	for _, m := range f.messages {
		if m.ChatID == create.ChatID && m.MessageID == create.MessageID && m.EditVersion == create.EditVersion {
			return nil, store.ErrAlreadyExists
		}
	}
	create.ID = f.id()
	f.messages = append(f.messages, create)
	return create, nil
}

func (f *fakeStore) GetLatestChatMessage(_ context.Context, chatID, messageID int64) (*store.ChatMessage, error) {
	var latest *store.ChatMessage
	for _, m := range f.messages {
		if m.ChatID != chatID || m.MessageID != messageID {
			continue
		}
		if latest == nil || m.EditVersion > latest.EditVersion {
			latest = m
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (f *fakeStore) CreateClientRequest(_ context.Context, create *store.ClientRequest) (*store.ClientRequest, error) {
	for _, r := range f.requests {
		if r.ChatID == create.ChatID && r.MessageID == create.MessageID {
			return nil, store.ErrAlreadyExists
		}
	}
	create.ID = f.id()
	f.requests[create.ID] = create
	return create, nil
}

func (f *fakeStore) GetClientRequest(_ context.Context, id int64) (*store.ClientRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return req, nil
}

func (f *fakeStore) ListClientRequests(_ context.Context, find *store.FindClientRequest) ([]*store.ClientRequest, error) {
	list := make([]*store.ClientRequest, 0)
	for _, req := range f.requests {
		if find.ID != nil && req.ID != *find.ID {
			continue
		}
		if find.ChatID != nil && req.ChatID != *find.ChatID {
			continue
		}
		if find.MessageID != nil && req.MessageID != *find.MessageID {
			continue
		}
		if find.Status != nil && req.Status != *find.Status {
			continue
		}
		if find.OnlyOpen && !req.Status.IsOpen() {
			continue
		}
		if find.TimerStarted != nil && *find.TimerStarted && req.SlaTimerStartedTs == nil {
			continue
		}
		list = append(list, req)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ReceivedTs != list[j].ReceivedTs {
			return list[i].ReceivedTs < list[j].ReceivedTs
		}
		return list[i].ID < list[j].ID
	})
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (f *fakeStore) UpdateClientRequest(_ context.Context, update *store.UpdateClientRequest) (*store.ClientRequest, error) {
	req, ok := f.requests[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Status != nil {
		req.Status = *update.Status
	}
	if update.SlaTimerStartedTs != nil {
		req.SlaTimerStartedTs = update.SlaTimerStartedTs
	}
	if update.SlaTimerPausedTs != nil {
		req.SlaTimerPausedTs = update.SlaTimerPausedTs
	}
	if update.ClearTimerPaused {
		req.SlaTimerPausedTs = nil
	}
	if update.SlaBreached != nil {
		req.SlaBreached = *update.SlaBreached
	}
	if update.ResponseTs != nil {
		req.ResponseTs = update.ResponseTs
	}
	if update.ResponseTimeMinutes != nil {
		req.ResponseTimeMinutes = update.ResponseTimeMinutes
	}
	if update.ResponseMessageID != nil {
		req.ResponseMessageID = update.ResponseMessageID
	}
	if update.RespondedBy != nil {
		req.RespondedBy = update.RespondedBy
	}
	if update.SlaWorkingMinutes != nil {
		req.SlaWorkingMinutes = update.SlaWorkingMinutes
	}
	if update.UpdatedTs != nil {
		req.UpdatedTs = *update.UpdatedTs
	}
	return req, nil
}

func (f *fakeStore) CreateSlaAlert(_ context.Context, create *store.SlaAlert) (*store.SlaAlert, error) {
	for _, a := range f.alerts {
		if a.RequestID == create.RequestID && a.AlertType == create.AlertType &&
			a.EscalationLevel == create.EscalationLevel && a.ManagerTelegramID == create.ManagerTelegramID {
			return nil, store.ErrAlreadyExists
		}
	}
	create.ID = f.id()
	f.alerts[create.ID] = create
	return create, nil
}

func (f *fakeStore) GetSlaAlert(_ context.Context, id int64) (*store.SlaAlert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return alert, nil
}

func (f *fakeStore) ListSlaAlerts(_ context.Context, find *store.FindSlaAlert) ([]*store.SlaAlert, error) {
	list := make([]*store.SlaAlert, 0)
	for _, alert := range f.alerts {
		if find.ID != nil && alert.ID != *find.ID {
			continue
		}
		if find.RequestID != nil && alert.RequestID != *find.RequestID {
			continue
		}
		if find.AlertType != nil && alert.AlertType != *find.AlertType {
			continue
		}
		if find.EscalationLevel != nil && alert.EscalationLevel != *find.EscalationLevel {
			continue
		}
		if find.OnlyUnresolved && alert.ResolvedAction != nil {
			continue
		}
		list = append(list, alert)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (f *fakeStore) UpdateSlaAlert(_ context.Context, update *store.UpdateSlaAlert) (*store.SlaAlert, error) {
	alert, ok := f.alerts[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if alert.ResolvedAction != nil {
		return nil, store.ErrAlreadyExists
	}
	if update.AlertSentTs != nil {
		alert.AlertSentTs = update.AlertSentTs
	}
	if update.DeliveryStatus != nil {
		alert.DeliveryStatus = *update.DeliveryStatus
	}
	if update.TelegramMessageID != nil {
		alert.TelegramMessageID = update.TelegramMessageID
	}
	if update.ResolvedAction != nil {
		alert.ResolvedAction = update.ResolvedAction
	}
	if update.AcknowledgedBy != nil {
		alert.AcknowledgedBy = update.AcknowledgedBy
	}
	if update.AcknowledgedTs != nil {
		alert.AcknowledgedTs = update.AcknowledgedTs
	}
	return alert, nil
}

// Queue persistence surface.

func (f *fakeStore) EnqueueJob(_ context.Context, create *store.Job) (*store.Job, bool, error) {
	for _, job := range f.jobs {
		if job.Queue == create.Queue && job.JobID == create.JobID && job.State == store.JobPending {
			return job, false, nil
		}
	}
	create.ID = f.id()
	create.State = store.JobPending
	f.jobs[create.ID] = create
	return create, true, nil
}

func (f *fakeStore) GetJobByJobID(_ context.Context, queueName, jobID string) (*store.Job, error) {
	for _, job := range f.jobs {
		if job.Queue == queueName && job.JobID == jobID &&
			(job.State == store.JobPending || job.State == store.JobRunning) {
			return job, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CancelJob(_ context.Context, queueName, jobID string) (bool, error) {
	for _, job := range f.jobs {
		if job.Queue == queueName && job.JobID == jobID && job.State == store.JobPending {
			job.State = store.JobCancelled
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) pendingJob(queueName, jobID string) *store.Job {
	for _, job := range f.jobs {
		if job.Queue == queueName && job.JobID == jobID && job.State == store.JobPending {
			return job
		}
	}
	return nil
}

type stubClassifier struct {
	result *classifier.Result
}

func (c *stubClassifier) Classify(context.Context, string) (*classifier.Result, error) {
	return c.result, nil
}

// newTestService wires a Service over the fake store with a controllable
// clock and a classifier that always says REQUEST.
func newTestService(f *fakeStore, now time.Time) *Service {
	s := NewService(f, queue.New(f), &stubClassifier{
		result: &classifier.Result{Category: classifier.CategoryRequest, Confidence: 0.9, Model: "keyword"},
	}, nil)
	s.now = func() time.Time { return now }
	return s
}

func moscow() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		panic(err)
	}
	return loc
}

func newEvent(chatID, messageID, senderID int64, text string, sent time.Time) *telegram.Event {
	return &telegram.Event{
		Kind:      telegram.EventMessage,
		ChatID:    chatID,
		ChatType:  "supergroup",
		MessageID: messageID,
		SenderID:  senderID,
		Text:      text,
		SentTs:    sent.Unix(),
	}
}

func replyEvent(chatID, messageID, senderID int64, text string, sent time.Time, replyTo int64) *telegram.Event {
	event := newEvent(chatID, messageID, senderID, text, sent)
	event.ReplyToMessageID = &replyTo
	return event
}

func monitoredChat(accountantID int64, managers ...int64) *store.Chat {
	return &store.Chat{
		ID:                   -100500,
		Type:                 store.ChatTypeSupergroup,
		Title:                "ООО Ромашка",
		AccountantTelegramID: &accountantID,
		SlaThresholdMinutes:  60,
		MonitoringEnabled:    true,
		ManagerTelegramIDs:   managers,
		RowStatus:            store.Normal,
	}
}
