package delivery

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/store"
)

type fakeDeliveryStore struct {
	alerts   map[int64]*store.SlaAlert
	requests map[int64]*store.ClientRequest
	chats    map[int64]*store.Chat
	messages map[int64]*store.ChatMessage // keyed by message id
	settings *store.GlobalSettings
}

func newFakeDeliveryStore() *fakeDeliveryStore {
	return &fakeDeliveryStore{
		alerts:   map[int64]*store.SlaAlert{},
		requests: map[int64]*store.ClientRequest{},
		chats:    map[int64]*store.Chat{},
		messages: map[int64]*store.ChatMessage{},
		settings: store.DefaultGlobalSettings(),
	}
}

func (f *fakeDeliveryStore) GetSlaAlert(_ context.Context, id int64) (*store.SlaAlert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return alert, nil
}

func (f *fakeDeliveryStore) UpdateSlaAlert(_ context.Context, update *store.UpdateSlaAlert) (*store.SlaAlert, error) {
	alert, ok := f.alerts[update.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.DeliveryStatus != nil {
		alert.DeliveryStatus = *update.DeliveryStatus
	}
	if update.TelegramMessageID != nil {
		alert.TelegramMessageID = update.TelegramMessageID
	}
	if update.AlertSentTs != nil {
		alert.AlertSentTs = update.AlertSentTs
	}
	return alert, nil
}

func (f *fakeDeliveryStore) GetClientRequest(_ context.Context, id int64) (*store.ClientRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return req, nil
}

func (f *fakeDeliveryStore) GetChat(_ context.Context, id int64) (*store.Chat, error) {
	chat, ok := f.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeDeliveryStore) GetLatestChatMessage(_ context.Context, _, messageID int64) (*store.ChatMessage, error) {
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

func (f *fakeDeliveryStore) GetGlobalSettings(context.Context) (*store.GlobalSettings, error) {
	return f.settings, nil
}

type sentMessage struct {
	chatID   int64
	text     string
	keyboard telegram.Keyboard
}

type fakeSender struct {
	sent      []sentMessage
	failFor   map[int64]error
	answers   []string
	messageID int64
}

func (f *fakeSender) SendHTML(_ context.Context, chatID int64, text string, keyboard telegram.Keyboard) (int64, error) {
	if err := f.failFor[chatID]; err != nil {
		return 0, err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	f.messageID++
	return f.messageID, nil
}

func (f *fakeSender) AnswerCallback(_ context.Context, _, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

type fakeEngine struct {
	resolved   []int64
	resolveErr error
	escalated  [][2]int64 // requestID, level
}

func (f *fakeEngine) ResolveAlert(_ context.Context, alertID int64, _ store.ResolvedAction, _ *int64) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.resolved = append(f.resolved, alertID)
	return nil
}

func (f *fakeEngine) ScheduleNextEscalation(_ context.Context, requestID int64, level int32) error {
	f.escalated = append(f.escalated, [2]int64{requestID, int64(level)})
	return nil
}

func seedAlert(f *fakeDeliveryStore, alertType store.AlertType, level int32) *store.SlaAlert {
	accountant := int64(777)
	f.chats[-100500] = &store.Chat{
		ID:                   -100500,
		Title:                "ООО Ромашка <тест>",
		AccountantTelegramID: &accountant,
		AccountantUsernames:  []string{"buh_anna"},
	}
	received := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	f.requests[1] = &store.ClientRequest{
		ID:                  1,
		ChatID:              -100500,
		MessageID:           501,
		Status:              store.RequestEscalated,
		ReceivedTs:          received.Unix(),
		SlaThresholdMinutes: 60,
	}
	f.messages[501] = &store.ChatMessage{
		ChatID:     -100500,
		MessageID:  501,
		SenderName: "Иван Петров",
		Text:       "Когда будет счёт за февраль?",
	}
	alert := &store.SlaAlert{
		ID:                9,
		RequestID:         1,
		AlertType:         alertType,
		EscalationLevel:   level,
		MinutesElapsed:    75,
		ManagerTelegramID: 10,
		DeliveryStatus:    store.DeliveryPending,
	}
	f.alerts[alert.ID] = alert
	return alert
}

func alertJob(t *testing.T, alert *store.SlaAlert, attemptsDone, attemptsMax int32) *store.Job {
	t.Helper()
	payload, err := json.Marshal(sla.AlertPayload{
		AlertID:   alert.ID,
		RequestID: alert.RequestID,
		Level:     alert.EscalationLevel,
	})
	require.NoError(t, err)
	return &store.Job{
		Queue:        "alerts",
		Name:         sla.JobSendAlert,
		JobID:        "alert-9",
		Payload:      payload,
		AttemptsDone: attemptsDone,
		AttemptsMax:  attemptsMax,
	}
}

func TestHandleAlertJobDelivers(t *testing.T) {
	f := newFakeDeliveryStore()
	alert := seedAlert(f, store.AlertBreach, 0)
	sender := &fakeSender{}
	engine := &fakeEngine{}
	w := NewWorker(f, sender, engine, nil)

	require.NoError(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 1, 3)))

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	require.Equal(t, int64(10), msg.chatID)
	require.Contains(t, msg.text, "Нарушение SLA")
	require.Contains(t, msg.text, "ООО Ромашка &lt;тест&gt;")
	require.Contains(t, msg.text, "Иван Петров")
	require.Contains(t, msg.text, "75 мин из 60")
	require.Contains(t, msg.text, "Когда будет счёт за февраль?")

	require.Len(t, msg.keyboard, 2)
	require.Equal(t, "resolve:9", msg.keyboard[0][0].CallbackData)
	require.Equal(t, "notify:9", msg.keyboard[0][1].CallbackData)
	require.Equal(t, "https://t.me/c/500", msg.keyboard[1][0].URL)

	require.Equal(t, store.DeliveryDelivered, alert.DeliveryStatus)
	require.NotNil(t, alert.TelegramMessageID)
	require.NotNil(t, alert.AlertSentTs)

	// A delivered breach arms the next escalation level.
	require.Equal(t, [][2]int64{{1, 0}}, engine.escalated)

	// Redelivery of the same job is a no-op.
	require.NoError(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 1, 3)))
	require.Len(t, sender.sent, 1)
}

func TestHandleAlertJobWarningDoesNotEscalate(t *testing.T) {
	f := newFakeDeliveryStore()
	alert := seedAlert(f, store.AlertWarning, 0)
	sender := &fakeSender{}
	engine := &fakeEngine{}
	w := NewWorker(f, sender, engine, nil)

	require.NoError(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 1, 3)))
	require.Len(t, sender.sent, 1)
	require.Contains(t, sender.sent[0].text, "Приближается нарушение SLA")
	require.Empty(t, engine.escalated)
}

func TestHandleAlertJobSkipsResolved(t *testing.T) {
	f := newFakeDeliveryStore()
	alert := seedAlert(f, store.AlertBreach, 0)
	action := store.ResolvedMarkResolved
	alert.ResolvedAction = &action
	sender := &fakeSender{}
	w := NewWorker(f, sender, &fakeEngine{}, nil)

	require.NoError(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 1, 3)))
	require.Empty(t, sender.sent)
	require.Equal(t, store.DeliveryPending, alert.DeliveryStatus)
}

func TestHandleAlertJobRetryThenFailed(t *testing.T) {
	f := newFakeDeliveryStore()
	alert := seedAlert(f, store.AlertBreach, 0)
	sender := &fakeSender{failFor: map[int64]error{10: errors.New("blocked by user")}}
	w := NewWorker(f, sender, &fakeEngine{}, nil)

	// Non-final attempt: error bubbles up, row stays pending for the retry.
	require.Error(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 1, 3)))
	require.Equal(t, store.DeliveryPending, alert.DeliveryStatus)

	// Final attempt: row flips to failed.
	require.Error(t, w.HandleAlertJob(context.Background(), alertJob(t, alert, 3, 3)))
	require.Equal(t, store.DeliveryFailed, alert.DeliveryStatus)
}

func TestHandleCallbackResolve(t *testing.T) {
	sender := &fakeSender{}
	engine := &fakeEngine{}
	w := NewWorker(newFakeDeliveryStore(), sender, engine, nil)

	err := w.HandleCallback(context.Background(), &telegram.Event{
		Kind:         telegram.EventCallback,
		CallbackID:   "cb1",
		CallbackData: "resolve:9",
		SenderID:     10,
	})
	require.NoError(t, err)
	require.Equal(t, []int64{9}, engine.resolved)
	require.Equal(t, []string{"Заявка отмечена решённой"}, sender.answers)
}

func TestHandleCallbackResolveAlreadyClosed(t *testing.T) {
	sender := &fakeSender{}
	engine := &fakeEngine{resolveErr: errors.Wrap(store.ErrAlreadyExists, "alert 9 is already resolved")}
	w := NewWorker(newFakeDeliveryStore(), sender, engine, nil)

	err := w.HandleCallback(context.Background(), &telegram.Event{
		CallbackID:   "cb1",
		CallbackData: "resolve:9",
		SenderID:     10,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Уже закрыто"}, sender.answers)
}

func TestHandleCallbackNotifyPrefersDirectMessage(t *testing.T) {
	f := newFakeDeliveryStore()
	seedAlert(f, store.AlertBreach, 0)
	sender := &fakeSender{}
	w := NewWorker(f, sender, &fakeEngine{}, nil)

	err := w.HandleCallback(context.Background(), &telegram.Event{
		CallbackID:   "cb2",
		CallbackData: "notify:9",
		SenderID:     10,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, int64(777), sender.sent[0].chatID)
	require.Contains(t, sender.sent[0].text, "Напоминание")
	require.Equal(t, []string{"Напоминание отправлено"}, sender.answers)
}

func TestHandleCallbackNotifyFallsBackToGroupMention(t *testing.T) {
	f := newFakeDeliveryStore()
	seedAlert(f, store.AlertBreach, 0)
	sender := &fakeSender{failFor: map[int64]error{777: errors.New("bot can't initiate conversation")}}
	w := NewWorker(f, sender, &fakeEngine{}, nil)

	err := w.HandleCallback(context.Background(), &telegram.Event{
		CallbackID:   "cb3",
		CallbackData: "notify:9",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, int64(-100500), sender.sent[0].chatID)
	require.True(t, strings.Contains(sender.sent[0].text, "@buh_anna"))
}

func TestHandleCallbackUnknownDataAcknowledged(t *testing.T) {
	sender := &fakeSender{}
	w := NewWorker(newFakeDeliveryStore(), sender, &fakeEngine{}, nil)

	for _, data := range []string{"", "resolve", "resolve:abc", "explode:1"} {
		require.NoError(t, w.HandleCallback(context.Background(), &telegram.Event{
			CallbackID:   "cb",
			CallbackData: data,
		}))
	}
	require.Equal(t, []string{"", "", "", ""}, sender.answers)
}

func TestTruncatePreview(t *testing.T) {
	require.Equal(t, "привет", truncatePreview("привет", 10))
	require.Equal(t, "прив…", truncatePreview("привет мир", 4))
	require.Equal(t, "whole", truncatePreview("whole", 0))
}

func TestRenderEscalationHeader(t *testing.T) {
	text := renderAlert(alertView{
		Alert: &store.SlaAlert{
			AlertType:       store.AlertBreach,
			EscalationLevel: 2,
			MinutesElapsed:  120,
		},
		Request:   &store.ClientRequest{ReceivedTs: time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC).Unix()},
		Threshold: 60,
		Preview:   200,
	})
	require.Contains(t, text, "эскалация 2")
	require.Contains(t, text, "120 мин из 60")
	require.Contains(t, text, "04.03.2025 07:00")
}
