package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/store"
)

// deliveryStore is the persistence surface the worker reads and updates.
type deliveryStore interface {
	GetSlaAlert(ctx context.Context, id int64) (*store.SlaAlert, error)
	UpdateSlaAlert(ctx context.Context, update *store.UpdateSlaAlert) (*store.SlaAlert, error)
	GetClientRequest(ctx context.Context, id int64) (*store.ClientRequest, error)
	GetChat(ctx context.Context, id int64) (*store.Chat, error)
	GetLatestChatMessage(ctx context.Context, chatID, messageID int64) (*store.ChatMessage, error)
	GetGlobalSettings(ctx context.Context) (*store.GlobalSettings, error)
}

// Sender is the outbound transport. *telegram.Channel implements it.
type Sender interface {
	SendHTML(ctx context.Context, chatID int64, text string, keyboard telegram.Keyboard) (int64, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Engine is the slice of the SLA service the worker drives.
type Engine interface {
	ResolveAlert(ctx context.Context, alertID int64, action store.ResolvedAction, userID *int64) error
	ScheduleNextEscalation(ctx context.Context, requestID int64, currentLevel int32) error
}

// Worker delivers alerts and handles the keyboard callbacks.
type Worker struct {
	store    deliveryStore
	sender   Sender
	engine   Engine
	exporter *metrics.Exporter
	now      func() time.Time
}

func NewWorker(st deliveryStore, sender Sender, engine Engine, exporter *metrics.Exporter) *Worker {
	return &Worker{
		store:    st,
		sender:   sender,
		engine:   engine,
		exporter: exporter,
		now:      time.Now,
	}
}

// HandleAlertJob is the alerts-queue handler for send-alert jobs. Returning an
// error hands the job back to the queue for a retry; the alert row only flips
// to failed on the final attempt.
func (w *Worker) HandleAlertJob(ctx context.Context, job *store.Job) error {
	var payload sla.AlertPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrapf(err, "bad send-alert payload for job %s", job.JobID)
	}

	alert, err := w.store.GetSlaAlert(ctx, payload.AlertID)
	if err == store.ErrNotFound {
		slog.Warn("delivery job for unknown alert", "alertId", payload.AlertID)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load alert %d", payload.AlertID)
	}
	if alert.ResolvedAction != nil {
		// Resolved while the job waited in the queue; nothing to send.
		return nil
	}
	if alert.DeliveryStatus == store.DeliveryDelivered {
		return nil
	}

	req, err := w.store.GetClientRequest(ctx, alert.RequestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", alert.RequestID)
	}

	text, keyboard := w.composeAlert(ctx, alert, req)
	messageID, err := w.sender.SendHTML(ctx, alert.ManagerTelegramID, text, keyboard)
	if err != nil {
		w.exporter.RecordDelivery(string(alert.AlertType), "failed")
		if job.AttemptsDone >= job.AttemptsMax {
			w.markFailed(ctx, alert.ID)
		}
		return errors.Wrapf(err, "failed to deliver alert %d to %d", alert.ID, alert.ManagerTelegramID)
	}

	sentTs := w.now().Unix()
	delivered := store.DeliveryDelivered
	if _, err := w.store.UpdateSlaAlert(ctx, &store.UpdateSlaAlert{
		ID:                alert.ID,
		DeliveryStatus:    &delivered,
		TelegramMessageID: &messageID,
		AlertSentTs:       &sentTs,
	}); err != nil && err != store.ErrAlreadyExists {
		return errors.Wrapf(err, "failed to record delivery of alert %d", alert.ID)
	}
	w.exporter.RecordDelivery(string(alert.AlertType), "delivered")

	slog.Info("alert delivered",
		"alertId", alert.ID,
		"requestId", alert.RequestID,
		"managerId", alert.ManagerTelegramID,
		"level", alert.EscalationLevel,
	)

	// Breach alerts arm the next escalation level once someone actually saw
	// this one. Warnings never escalate.
	if alert.AlertType == store.AlertBreach {
		return w.engine.ScheduleNextEscalation(ctx, alert.RequestID, alert.EscalationLevel)
	}
	return nil
}

func (w *Worker) composeAlert(ctx context.Context, alert *store.SlaAlert, req *store.ClientRequest) (string, telegram.Keyboard) {
	settings, err := w.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}

	chat, err := w.store.GetChat(ctx, req.ChatID)
	if err != nil && err != store.ErrNotFound {
		slog.Warn("failed to load chat for alert", "alertId", alert.ID, "error", err)
	}
	message, err := w.store.GetLatestChatMessage(ctx, req.ChatID, req.MessageID)
	if err != nil && err != store.ErrNotFound {
		slog.Warn("failed to load message for alert", "alertId", alert.ID, "error", err)
	}

	loc, err := time.LoadLocation(settings.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}

	threshold := req.SlaThresholdMinutes
	if threshold <= 0 {
		threshold = settings.SlaThresholdMinutes
	}

	text := renderAlert(alertView{
		Alert:     alert,
		Request:   req,
		Chat:      chat,
		Message:   message,
		Threshold: threshold,
		Preview:   settings.PreviewLength,
		Location:  loc,
	})
	return text, alertKeyboard(alert.ID, req.ChatID)
}

func (w *Worker) markFailed(ctx context.Context, alertID int64) {
	failed := store.DeliveryFailed
	if _, err := w.store.UpdateSlaAlert(ctx, &store.UpdateSlaAlert{
		ID:             alertID,
		DeliveryStatus: &failed,
	}); err != nil && err != store.ErrAlreadyExists {
		slog.Warn("failed to mark alert failed", "alertId", alertID, "error", err)
	}
}

// HandleCallback reacts to the alert keyboard. Unknown callback data is
// acknowledged silently so the client spinner stops.
func (w *Worker) HandleCallback(ctx context.Context, event *telegram.Event) error {
	action, rawID, found := strings.Cut(event.CallbackData, ":")
	if !found {
		return w.sender.AnswerCallback(ctx, event.CallbackID, "")
	}
	alertID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return w.sender.AnswerCallback(ctx, event.CallbackID, "")
	}

	switch action {
	case "resolve":
		if err := w.engine.ResolveAlert(ctx, alertID, store.ResolvedMarkResolved, &event.SenderID); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return w.sender.AnswerCallback(ctx, event.CallbackID, "Уже закрыто")
			}
			return err
		}
		return w.sender.AnswerCallback(ctx, event.CallbackID, "Заявка отмечена решённой")
	case "notify":
		if err := w.NotifyAccountant(ctx, alertID); err != nil {
			return err
		}
		return w.sender.AnswerCallback(ctx, event.CallbackID, "Напоминание отправлено")
	default:
		return w.sender.AnswerCallback(ctx, event.CallbackID, "")
	}
}

// NotifyAccountant pings the chat's accountant about an open alert: a direct
// message when the id is known, otherwise an @mention in the group. Reachable
// from the alert keyboard and from the admin API.
func (w *Worker) NotifyAccountant(ctx context.Context, alertID int64) error {
	alert, err := w.store.GetSlaAlert(ctx, alertID)
	if err != nil {
		return errors.Wrapf(err, "failed to load alert %d", alertID)
	}
	req, err := w.store.GetClientRequest(ctx, alert.RequestID)
	if err != nil {
		return errors.Wrapf(err, "failed to load request %d", alert.RequestID)
	}
	chat, err := w.store.GetChat(ctx, req.ChatID)
	if err != nil {
		return errors.Wrapf(err, "failed to load chat %d", req.ChatID)
	}

	text := fmt.Sprintf(
		"🔔 Напоминание: в чате <b>%s</b> ждёт ответа вопрос клиента (%d мин). %s",
		html.EscapeString(chat.Title), alert.MinutesElapsed, telegram.ChatLink(chat.ID),
	)

	if chat.AccountantTelegramID != nil {
		_, err := w.sender.SendHTML(ctx, *chat.AccountantTelegramID, text, nil)
		if err == nil {
			return nil
		}
		slog.Warn("direct reminder failed, falling back to group",
			"chatId", chat.ID, "accountantId", *chat.AccountantTelegramID, "error", err)
	}

	mention := ""
	if len(chat.AccountantUsernames) > 0 {
		mention = "@" + chat.AccountantUsernames[0] + " "
	}
	group := fmt.Sprintf("🔔 %sнапоминание: вопрос клиента ждёт ответа уже %d мин.", mention, alert.MinutesElapsed)
	_, err = w.sender.SendHTML(ctx, chat.ID, group, nil)
	return errors.Wrapf(err, "failed to send group reminder for alert %d", alertID)
}
