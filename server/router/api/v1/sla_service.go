package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/classifier"
	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/store"
)

type requestView struct {
	ID                  int64    `json:"id"`
	UID                 string   `json:"uid"`
	ChatID              ID       `json:"chatId"`
	MessageID           ID       `json:"messageId"`
	Status              string   `json:"status"`
	ReceivedTs          int64    `json:"receivedTs"`
	Category            string   `json:"category"`
	Confidence          float64  `json:"confidence"`
	ClassifierModel     string   `json:"classifierModel"`
	SlaThresholdMinutes int32    `json:"slaThresholdMinutes"`
	SlaTimerStartedTs   *int64   `json:"slaTimerStartedTs"`
	SlaTimerPausedTs    *int64   `json:"slaTimerPausedTs"`
	SlaBreached         bool     `json:"slaBreached"`
	ResponseTs          *int64   `json:"responseTs"`
	ResponseTimeMinutes *int32   `json:"responseTimeMinutes"`
	ResponseMessageID   *ID      `json:"responseMessageId"`
	RespondedBy         *ID      `json:"respondedBy"`
	SlaWorkingMinutes   *int32   `json:"slaWorkingMinutes"`
}

func toRequestView(req *store.ClientRequest) *requestView {
	return &requestView{
		ID:                  req.ID,
		UID:                 req.UID,
		ChatID:              idOf(req.ChatID),
		MessageID:           idOf(req.MessageID),
		Status:              string(req.Status),
		ReceivedTs:          req.ReceivedTs,
		Category:            req.Category,
		Confidence:          req.Confidence,
		ClassifierModel:     req.ClassifierModel,
		SlaThresholdMinutes: req.SlaThresholdMinutes,
		SlaTimerStartedTs:   req.SlaTimerStartedTs,
		SlaTimerPausedTs:    req.SlaTimerPausedTs,
		SlaBreached:         req.SlaBreached,
		ResponseTs:          req.ResponseTs,
		ResponseTimeMinutes: req.ResponseTimeMinutes,
		ResponseMessageID:   idPtr(req.ResponseMessageID),
		RespondedBy:         idPtr(req.RespondedBy),
		SlaWorkingMinutes:   req.SlaWorkingMinutes,
	}
}

// createRequest registers a tracked request manually, bypassing ingest
// classification when a category is supplied.
func (s *APIV1Service) createRequest(c echo.Context) error {
	var in struct {
		ChatID     ID      `json:"chatId"`
		MessageID  ID      `json:"messageId"`
		Text       string  `json:"text"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		ReceivedTs int64   `json:"receivedTs"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 || in.MessageID == 0 {
		return errBadRequest(c, "chatId and messageId are required")
	}

	ctx := c.Request().Context()
	chat, err := s.store.GetChat(ctx, in.ChatID.Int64())
	if err != nil {
		return storeError(c, err, "chat not found")
	}

	category := in.Category
	confidence := in.Confidence
	model := "manual"
	if category == "" {
		if in.Text == "" {
			return errBadRequest(c, "either category or text is required")
		}
		result, err := s.classifier.Classify(ctx, in.Text)
		if err != nil {
			return errInternal(c, err)
		}
		category, confidence, model = string(result.Category), result.Confidence, result.Model
	}

	existing, err := s.store.ListClientRequests(ctx, &store.FindClientRequest{
		ChatID:    &chat.ID,
		MessageID: ptr(in.MessageID.Int64()),
	})
	if err != nil {
		return errInternal(c, err)
	}
	if len(existing) > 0 {
		return errConflict(c, "request already exists for this message")
	}

	receivedTs := in.ReceivedTs
	if receivedTs == 0 {
		receivedTs = nowUnix()
	}
	threshold := chat.SlaThresholdMinutes
	if threshold <= 0 {
		if settings, err := s.store.GetGlobalSettings(ctx); err == nil {
			threshold = settings.SlaThresholdMinutes
		} else {
			threshold = store.DefaultGlobalSettings().SlaThresholdMinutes
		}
	}

	req, err := s.store.CreateClientRequest(ctx, &store.ClientRequest{
		UID:                 shortuuid.New(),
		ChatID:              chat.ID,
		MessageID:           in.MessageID.Int64(),
		Status:              store.RequestPending,
		ReceivedTs:          receivedTs,
		Category:            category,
		Confidence:          confidence,
		ClassifierModel:     model,
		SlaThresholdMinutes: threshold,
		CreatedTs:           nowUnix(),
		UpdatedTs:           nowUnix(),
	})
	if err != nil {
		return storeError(c, err, "chat not found")
	}
	if err := s.engine.StartTimer(ctx, req.ID); err != nil {
		return errInternal(c, err)
	}
	req, err = s.store.GetClientRequest(ctx, req.ID)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, toRequestView(req))
}

// classifyMessage runs the cascade without side effects beyond the cache.
func (s *APIV1Service) classifyMessage(c echo.Context) error {
	var in struct {
		Text string `json:"text"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.Text == "" {
		return errBadRequest(c, "text is required")
	}

	result, err := s.classifier.Classify(c.Request().Context(), in.Text)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"category":   result.Category,
		"confidence": result.Confidence,
		"model":      result.Model,
		"reasoning":  result.Reasoning,
		"isRequest":  result.Category == classifier.CategoryRequest,
	})
}

func (s *APIV1Service) startTimer(c echo.Context) error {
	var in struct {
		RequestID int64 `json:"requestId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.RequestID == 0 {
		return errBadRequest(c, "requestId is required")
	}

	ctx := c.Request().Context()
	if err := s.engine.StartTimer(ctx, in.RequestID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound(c, "request not found")
		}
		return errInternal(c, err)
	}
	req, err := s.store.GetClientRequest(ctx, in.RequestID)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, toRequestView(req))
}

func (s *APIV1Service) stopTimer(c echo.Context) error {
	var in struct {
		RequestID   int64 `json:"requestId"`
		RespondedBy *ID   `json:"respondedBy"`
		ResponseTs  int64 `json:"responseTs"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.RequestID == 0 {
		return errBadRequest(c, "requestId is required")
	}

	ctx := c.Request().Context()
	var respondedBy *int64
	if in.RespondedBy != nil {
		respondedBy = ptr(in.RespondedBy.Int64())
	}
	result, err := s.engine.StopTimer(ctx, in.RequestID, sla.StopParams{
		RespondedBy: respondedBy,
		ResponseTs:  in.ResponseTs,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound(c, "request not found")
		}
		return errInternal(c, err)
	}
	if result == sla.StopStopped {
		s.engine.OnAccountantResponse(ctx, in.RequestID, respondedBy)
	}

	req, err := s.store.GetClientRequest(ctx, in.RequestID)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"result":  result,
		"request": toRequestView(req),
	})
}

func (s *APIV1Service) getRequests(c echo.Context) error {
	var in struct {
		ChatID   *ID     `json:"chatId"`
		Status   *string `json:"status"`
		OnlyOpen bool    `json:"onlyOpen"`
		Limit    *int    `json:"limit"`
		Offset   *int    `json:"offset"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	find := &store.FindClientRequest{
		OnlyOpen: in.OnlyOpen,
		Limit:    in.Limit,
		Offset:   in.Offset,
	}
	if in.ChatID != nil {
		find.ChatID = ptr(in.ChatID.Int64())
	}
	if in.Status != nil {
		status := store.RequestStatus(*in.Status)
		find.Status = &status
	}

	requests, err := s.store.ListClientRequests(c.Request().Context(), find)
	if err != nil {
		return errInternal(c, err)
	}
	views := make([]*requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, toRequestView(req))
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": views})
}

func (s *APIV1Service) getRequestByID(c echo.Context) error {
	var in struct {
		RequestID int64 `json:"requestId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	req, err := s.store.GetClientRequest(c.Request().Context(), in.RequestID)
	if err != nil {
		return storeError(c, err, "request not found")
	}
	return c.JSON(http.StatusOK, toRequestView(req))
}

func (s *APIV1Service) getActiveTimers(c echo.Context) error {
	ctx := c.Request().Context()
	requests, err := s.engine.ActiveTimers(ctx)
	if err != nil {
		return errInternal(c, err)
	}

	type timerView struct {
		Request          *requestView `json:"request"`
		ElapsedMinutes   int32        `json:"elapsedMinutes"`
		RemainingMinutes int32        `json:"remainingMinutes"`
	}
	views := make([]*timerView, 0, len(requests))
	for _, req := range requests {
		status, err := s.engine.SlaStatus(ctx, req.ID)
		if err != nil {
			return errInternal(c, err)
		}
		views = append(views, &timerView{
			Request:          toRequestView(req),
			ElapsedMinutes:   status.ElapsedWorkingMinutes,
			RemainingMinutes: status.RemainingMinutes,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"timers": views})
}
