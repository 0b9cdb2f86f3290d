package sla

import (
	"context"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/store"
)

// HandleMessage is the ingest entry point for new and edited messages. It
// logs the message append-only, then either creates a tracked request (client
// sender) or resolves one (accountant sender).
func (s *Service) HandleMessage(ctx context.Context, event *telegram.Event) error {
	start := time.Now()
	outcome := "ignored"
	defer func() {
		s.exporter.ObserveProcessing(outcome, time.Since(start).Seconds())
	}()

	chat, err := s.store.GetChat(ctx, event.ChatID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to load chat %d", event.ChatID)
	}
	if !chat.MonitoringEnabled || chat.RowStatus == store.Archived {
		return nil
	}

	isAccountant := s.isAccountant(chat, event)
	senderClass := "client"
	if isAccountant {
		senderClass = "accountant"
	}
	s.exporter.RecordMessageReceived(string(chat.Type), senderClass)

	if err := s.logMessage(ctx, event, isAccountant); err != nil {
		return err
	}

	// Edits only extend the append-only log; they never create a second
	// request for the same message or resolve anything.
	if event.Kind == telegram.EventEditedMessage {
		outcome = "edit_logged"
		return nil
	}

	if isAccountant {
		outcome = "accountant_response"
		return s.handleAccountantMessage(ctx, chat, event)
	}

	created, err := s.handleClientMessage(ctx, chat, event)
	if err != nil {
		return err
	}
	if created {
		outcome = "request_created"
	} else {
		outcome = "not_a_request"
	}
	return nil
}

// isAccountant matches the sender against the chat's assigned accountant id
// and username list.
func (s *Service) isAccountant(chat *store.Chat, event *telegram.Event) bool {
	if chat.AccountantTelegramID != nil && *chat.AccountantTelegramID == event.SenderID {
		return true
	}
	if event.SenderUsername == "" {
		return false
	}
	for _, username := range chat.AccountantUsernames {
		if username == event.SenderUsername {
			return true
		}
	}
	return false
}

// logMessage appends the message to the log. Edits insert the next
// editVersion; new messages always land at version 0 so a redelivered update
// dedupes against the unique (chat, message, version) row.
func (s *Service) logMessage(ctx context.Context, event *telegram.Event, isAccountant bool) error {
	editVersion := int32(0)
	if event.Kind == telegram.EventEditedMessage {
		latest, err := s.store.GetLatestChatMessage(ctx, event.ChatID, event.MessageID)
		switch {
		case err == nil:
			editVersion = latest.EditVersion + 1
		case err == store.ErrNotFound:
			// The original predates monitoring; keep the edit as the
			// initial version.
			slog.Warn("edit without logged original",
				"chatId", event.ChatID,
				"messageId", event.MessageID,
			)
		default:
			return errors.Wrapf(err, "failed to load message history for %d/%d", event.ChatID, event.MessageID)
		}
	}

	_, err := s.store.CreateChatMessage(ctx, &store.ChatMessage{
		ChatID:           event.ChatID,
		MessageID:        event.MessageID,
		EditVersion:      editVersion,
		SenderID:         event.SenderID,
		SenderUsername:   event.SenderUsername,
		SenderName:       event.SenderName,
		Text:             event.Text,
		IsAccountant:     isAccountant,
		ReplyToMessageID: event.ReplyToMessageID,
		MessageType:      store.MessageTypeText,
		SentTs:           event.SentTs,
		CreatedTs:        s.now().Unix(),
	})
	if err == store.ErrAlreadyExists {
		// Transport redelivered the same update; the log already has it.
		return nil
	}
	return errors.Wrapf(err, "failed to log message %d/%d", event.ChatID, event.MessageID)
}

// handleClientMessage classifies the text and creates a tracked request when
// the verdict is REQUEST. Returns whether a request was created.
func (s *Service) handleClientMessage(ctx context.Context, chat *store.Chat, event *telegram.Event) (bool, error) {
	if event.Text == "" {
		return false, nil
	}

	result, err := s.classifier.Classify(ctx, event.Text)
	if err != nil {
		return false, errors.Wrap(err, "classification failed")
	}
	if !result.IsRequest() {
		slog.Debug("message not tracked",
			"chatId", event.ChatID,
			"messageId", event.MessageID,
			"category", result.Category,
			"model", result.Model,
		)
		return false, nil
	}

	nowTs := s.now().Unix()
	req, err := s.store.CreateClientRequest(ctx, &store.ClientRequest{
		UID:                 shortuuid.New(),
		ChatID:              event.ChatID,
		MessageID:           event.MessageID,
		Status:              store.RequestPending,
		ReceivedTs:          event.SentTs,
		Category:            string(result.Category),
		Confidence:          result.Confidence,
		ClassifierModel:     result.Model,
		SlaThresholdMinutes: s.resolveThreshold(ctx, chat),
		CreatedTs:           nowTs,
		UpdatedTs:           nowTs,
	})
	if err == store.ErrAlreadyExists {
		// A request for this message exists; concurrent deliveries of the
		// same update race here and the unique row settles it.
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to create client request")
	}

	slog.Info("client request created",
		"requestId", req.ID,
		"uid", req.UID,
		"chatId", req.ChatID,
		"messageId", req.MessageID,
		"category", result.Category,
		"confidence", result.Confidence,
		"model", result.Model,
	)
	return true, s.StartTimer(ctx, req.ID)
}

// handleAccountantMessage resolves a request: the reply target when the
// message is a reply, otherwise the oldest open request in the chat.
func (s *Service) handleAccountantMessage(ctx context.Context, chat *store.Chat, event *telegram.Event) error {
	req, err := s.findRequestToResolve(ctx, chat.ID, event)
	if err != nil {
		return err
	}
	if req == nil {
		return nil
	}

	result, err := s.StopTimer(ctx, req.ID, StopParams{
		RespondedBy:       &event.SenderID,
		ResponseMessageID: &event.MessageID,
		ResponseTs:        event.SentTs,
	})
	if err != nil {
		return err
	}
	if result == StopStopped {
		s.OnAccountantResponse(ctx, req.ID, &event.SenderID)
	}
	return nil
}

func (s *Service) findRequestToResolve(ctx context.Context, chatID int64, event *telegram.Event) (*store.ClientRequest, error) {
	if event.ReplyToMessageID != nil {
		requests, err := s.store.ListClientRequests(ctx, &store.FindClientRequest{
			ChatID:    &chatID,
			MessageID: event.ReplyToMessageID,
			OnlyOpen:  true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to find replied-to request")
		}
		if len(requests) > 0 {
			return requests[0], nil
		}
		// The reply targets something untracked; fall through to FIFO.
	}

	limit := 1
	requests, err := s.store.ListClientRequests(ctx, &store.FindClientRequest{
		ChatID:   &chatID,
		OnlyOpen: true,
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find oldest open request")
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return requests[0], nil
}
