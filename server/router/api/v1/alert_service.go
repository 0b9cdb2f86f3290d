package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/store"
)

type alertView struct {
	ID                int64   `json:"id"`
	RequestID         int64   `json:"requestId"`
	AlertType         string  `json:"alertType"`
	EscalationLevel   int32   `json:"escalationLevel"`
	MinutesElapsed    int32   `json:"minutesElapsed"`
	ManagerTelegramID ID      `json:"managerTelegramId"`
	AlertSentTs       *int64  `json:"alertSentTs"`
	DeliveryStatus    string  `json:"deliveryStatus"`
	TelegramMessageID *ID     `json:"telegramMessageId"`
	ResolvedAction    *string `json:"resolvedAction"`
	AcknowledgedBy    *ID     `json:"acknowledgedBy"`
	AcknowledgedTs    *int64  `json:"acknowledgedTs"`
}

func toAlertView(alert *store.SlaAlert) *alertView {
	view := &alertView{
		ID:                alert.ID,
		RequestID:         alert.RequestID,
		AlertType:         string(alert.AlertType),
		EscalationLevel:   alert.EscalationLevel,
		MinutesElapsed:    alert.MinutesElapsed,
		ManagerTelegramID: idOf(alert.ManagerTelegramID),
		AlertSentTs:       alert.AlertSentTs,
		DeliveryStatus:    string(alert.DeliveryStatus),
		TelegramMessageID: idPtr(alert.TelegramMessageID),
		AcknowledgedBy:    idPtr(alert.AcknowledgedBy),
		AcknowledgedTs:    alert.AcknowledgedTs,
	}
	if alert.ResolvedAction != nil {
		action := string(*alert.ResolvedAction)
		view.ResolvedAction = &action
	}
	return view
}

func (s *APIV1Service) createAlert(c echo.Context) error {
	var in struct {
		RequestID         int64  `json:"requestId"`
		AlertType         string `json:"alertType"`
		EscalationLevel   int32  `json:"escalationLevel"`
		ManagerTelegramID ID     `json:"managerTelegramId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.RequestID == 0 || in.ManagerTelegramID == 0 {
		return errBadRequest(c, "requestId and managerTelegramId are required")
	}
	alertType := store.AlertType(in.AlertType)
	if alertType != store.AlertWarning && alertType != store.AlertBreach {
		return errBadRequest(c, "alertType must be warning or breach")
	}
	if in.EscalationLevel < 0 {
		return errBadRequest(c, "escalationLevel must not be negative")
	}

	alert, err := s.engine.CreateAlert(c.Request().Context(),
		in.RequestID, alertType, in.EscalationLevel, in.ManagerTelegramID.Int64())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return errNotFound(c, "request not found")
		case errors.Is(err, store.ErrAlreadyExists):
			return errConflict(c, "alert already exists for this level and recipient")
		default:
			return errInternal(c, err)
		}
	}
	return c.JSON(http.StatusOK, toAlertView(alert))
}

func (s *APIV1Service) resolveAlert(c echo.Context) error {
	var in struct {
		AlertID int64  `json:"alertId"`
		Action  string `json:"action"`
		UserID  *ID    `json:"userId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.AlertID == 0 {
		return errBadRequest(c, "alertId is required")
	}
	action := store.ResolvedAction(in.Action)
	switch action {
	case store.ResolvedMarkResolved, store.ResolvedAccountantResponded, store.ResolvedAutoExpired:
	default:
		return errBadRequest(c, "action must be mark_resolved, accountant_responded or auto_expired")
	}

	var userID *int64
	if in.UserID != nil {
		userID = ptr(in.UserID.Int64())
	}
	ctx := c.Request().Context()
	if err := s.engine.ResolveAlert(ctx, in.AlertID, action, userID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return errNotFound(c, "alert not found")
		case errors.Is(err, store.ErrAlreadyExists):
			return errConflict(c, "alert is already resolved")
		default:
			return errInternal(c, err)
		}
	}

	alert, err := s.store.GetSlaAlert(ctx, in.AlertID)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, toAlertView(alert))
}

func (s *APIV1Service) notifyAccountant(c echo.Context) error {
	var in struct {
		AlertID int64 `json:"alertId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.AlertID == 0 {
		return errBadRequest(c, "alertId is required")
	}

	if err := s.delivery.NotifyAccountant(c.Request().Context(), in.AlertID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNotFound(c, "alert not found")
		}
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"notified": true})
}

func (s *APIV1Service) updateDeliveryStatus(c echo.Context) error {
	var in struct {
		AlertID           int64  `json:"alertId"`
		DeliveryStatus    string `json:"deliveryStatus"`
		TelegramMessageID *ID    `json:"telegramMessageId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.AlertID == 0 {
		return errBadRequest(c, "alertId is required")
	}
	status := store.DeliveryStatus(in.DeliveryStatus)
	switch status {
	case store.DeliveryPending, store.DeliverySent, store.DeliveryDelivered, store.DeliveryFailed:
	default:
		return errBadRequest(c, "deliveryStatus must be pending, sent, delivered or failed")
	}

	update := &store.UpdateSlaAlert{ID: in.AlertID, DeliveryStatus: &status}
	if in.TelegramMessageID != nil {
		update.TelegramMessageID = ptr(in.TelegramMessageID.Int64())
	}
	if status == store.DeliveryDelivered || status == store.DeliverySent {
		update.AlertSentTs = ptr(nowUnix())
	}
	alert, err := s.store.UpdateSlaAlert(c.Request().Context(), update)
	if err != nil {
		return storeError(c, err, "alert not found")
	}
	return c.JSON(http.StatusOK, toAlertView(alert))
}

func (s *APIV1Service) getAlerts(c echo.Context) error {
	var in struct {
		RequestID       *int64  `json:"requestId"`
		AlertType       *string `json:"alertType"`
		EscalationLevel *int32  `json:"escalationLevel"`
		OnlyUnresolved  bool    `json:"onlyUnresolved"`
		Limit           *int    `json:"limit"`
		Offset          *int    `json:"offset"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	find := &store.FindSlaAlert{
		RequestID:       in.RequestID,
		EscalationLevel: in.EscalationLevel,
		OnlyUnresolved:  in.OnlyUnresolved,
		Limit:           in.Limit,
		Offset:          in.Offset,
	}
	if in.AlertType != nil {
		alertType := store.AlertType(*in.AlertType)
		find.AlertType = &alertType
	}
	alerts, err := s.store.ListSlaAlerts(c.Request().Context(), find)
	if err != nil {
		return errInternal(c, err)
	}
	views := make([]*alertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, toAlertView(alert))
	}
	return c.JSON(http.StatusOK, echo.Map{"alerts": views})
}

func (s *APIV1Service) getAlertByID(c echo.Context) error {
	var in struct {
		AlertID int64 `json:"alertId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	alert, err := s.store.GetSlaAlert(c.Request().Context(), in.AlertID)
	if err != nil {
		return storeError(c, err, "alert not found")
	}
	return c.JSON(http.StatusOK, toAlertView(alert))
}

func (s *APIV1Service) getActiveAlerts(c echo.Context) error {
	alerts, err := s.store.ListSlaAlerts(c.Request().Context(), &store.FindSlaAlert{OnlyUnresolved: true})
	if err != nil {
		return errInternal(c, err)
	}
	views := make([]*alertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, toAlertView(alert))
	}
	return c.JSON(http.StatusOK, echo.Map{"alerts": views})
}

func (s *APIV1Service) getAlertStats(c echo.Context) error {
	stats, err := s.store.GetAlertStats(c.Request().Context())
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
