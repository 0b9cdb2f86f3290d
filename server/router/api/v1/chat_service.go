package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/slawatch/store"
)

type chatView struct {
	ID                   ID       `json:"id"`
	Type                 string   `json:"type"`
	Title                string   `json:"title"`
	AccountantTelegramID *ID      `json:"accountantTelegramId"`
	AccountantUsernames  []string `json:"accountantUsernames"`
	SlaThresholdMinutes  int32    `json:"slaThresholdMinutes"`
	MonitoringEnabled    bool     `json:"monitoringEnabled"`
	Is24x7               bool     `json:"is24x7"`
	ManagerTelegramIDs   []ID     `json:"managerTelegramIds"`
	RowStatus            string   `json:"rowStatus"`
}

func toChatView(chat *store.Chat) *chatView {
	return &chatView{
		ID:                   idOf(chat.ID),
		Type:                 string(chat.Type),
		Title:                chat.Title,
		AccountantTelegramID: idPtr(chat.AccountantTelegramID),
		AccountantUsernames:  chat.AccountantUsernames,
		SlaThresholdMinutes:  chat.SlaThresholdMinutes,
		MonitoringEnabled:    chat.MonitoringEnabled,
		Is24x7:               chat.Is24x7,
		ManagerTelegramIDs:   ids(chat.ManagerTelegramIDs),
		RowStatus:            chat.RowStatus.String(),
	}
}

func validChatType(t string) bool {
	switch store.ChatType(t) {
	case store.ChatTypePrivate, store.ChatTypeGroup, store.ChatTypeSupergroup:
		return true
	}
	return false
}

func (s *APIV1Service) registerChat(c echo.Context) error {
	var in struct {
		ChatID               ID       `json:"chatId"`
		Type                 string   `json:"type"`
		Title                string   `json:"title"`
		AccountantTelegramID *ID      `json:"accountantTelegramId"`
		AccountantUsernames  []string `json:"accountantUsernames"`
		SlaThresholdMinutes  int32    `json:"slaThresholdMinutes"`
		Is24x7               bool     `json:"is24x7"`
		ManagerTelegramIDs   []ID     `json:"managerTelegramIds"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}
	if !validChatType(in.Type) {
		return errBadRequest(c, "type must be private, group or supergroup")
	}
	if in.SlaThresholdMinutes < 0 {
		return errBadRequest(c, "slaThresholdMinutes must not be negative")
	}

	var accountantID *int64
	if in.AccountantTelegramID != nil {
		accountantID = ptr(in.AccountantTelegramID.Int64())
	}
	chat, err := s.store.CreateChat(c.Request().Context(), &store.Chat{
		ID:                   in.ChatID.Int64(),
		Type:                 store.ChatType(in.Type),
		Title:                in.Title,
		AccountantTelegramID: accountantID,
		AccountantUsernames:  in.AccountantUsernames,
		SlaThresholdMinutes:  in.SlaThresholdMinutes,
		MonitoringEnabled:    true,
		Is24x7:               in.Is24x7,
		ManagerTelegramIDs:   int64s(in.ManagerTelegramIDs),
		RowStatus:            store.Normal,
		CreatedTs:            nowUnix(),
		UpdatedTs:            nowUnix(),
	})
	if err != nil {
		return storeError(c, err, "chat not found")
	}
	return c.JSON(http.StatusOK, toChatView(chat))
}

func (s *APIV1Service) updateChat(c echo.Context) error {
	var in struct {
		ChatID               ID       `json:"chatId"`
		Title                *string  `json:"title"`
		Type                 *string  `json:"type"`
		AccountantTelegramID *ID      `json:"accountantTelegramId"`
		AccountantUsernames  []string `json:"accountantUsernames"`
		SlaThresholdMinutes  *int32   `json:"slaThresholdMinutes"`
		MonitoringEnabled    *bool    `json:"monitoringEnabled"`
		Is24x7               *bool    `json:"is24x7"`
		ManagerTelegramIDs   []ID     `json:"managerTelegramIds"`
		Archived             *bool    `json:"archived"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}
	if in.Type != nil && !validChatType(*in.Type) {
		return errBadRequest(c, "type must be private, group or supergroup")
	}
	if in.SlaThresholdMinutes != nil && *in.SlaThresholdMinutes < 0 {
		return errBadRequest(c, "slaThresholdMinutes must not be negative")
	}

	update := &store.UpdateChat{
		ID:                  in.ChatID.Int64(),
		Title:               in.Title,
		AccountantUsernames: in.AccountantUsernames,
		SlaThresholdMinutes: in.SlaThresholdMinutes,
		MonitoringEnabled:   in.MonitoringEnabled,
		Is24x7:              in.Is24x7,
		UpdatedTs:           ptr(nowUnix()),
	}
	if in.Type != nil {
		chatType := store.ChatType(*in.Type)
		update.Type = &chatType
	}
	if in.AccountantTelegramID != nil {
		update.AccountantTelegramID = ptr(in.AccountantTelegramID.Int64())
	}
	if in.ManagerTelegramIDs != nil {
		update.ManagerTelegramIDs = int64s(in.ManagerTelegramIDs)
	}
	if in.Archived != nil {
		status := store.Normal
		if *in.Archived {
			status = store.Archived
		}
		update.RowStatus = &status
	}

	chat, err := s.store.UpdateChat(c.Request().Context(), update)
	if err != nil {
		return storeError(c, err, "chat not found")
	}
	return c.JSON(http.StatusOK, toChatView(chat))
}

// updateWorkingSchedule replaces the full weekly schedule of a chat. An empty
// rows list clears the chat schedule so the global defaults apply again.
func (s *APIV1Service) updateWorkingSchedule(c echo.Context) error {
	var in struct {
		ChatID ID `json:"chatId"`
		Rows   []struct {
			Weekday   int32  `json:"weekday"`
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
			Timezone  string `json:"timezone"`
		} `json:"rows"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}

	rows := make([]*store.WorkingSchedule, 0, len(in.Rows))
	seen := map[int32]bool{}
	for _, row := range in.Rows {
		if row.Weekday < 1 || row.Weekday > 7 {
			return errBadRequest(c, "weekday must be 1 (Monday) through 7 (Sunday)")
		}
		if seen[row.Weekday] {
			return errBadRequest(c, "duplicate weekday in schedule")
		}
		seen[row.Weekday] = true
		if err := validateClock(row.StartTime); err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := validateClock(row.EndTime); err != nil {
			return errBadRequest(c, err.Error())
		}
		if row.StartTime >= row.EndTime {
			return errBadRequest(c, "startTime must be before endTime")
		}
		rows = append(rows, &store.WorkingSchedule{
			ChatID:    in.ChatID.Int64(),
			Weekday:   row.Weekday,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
			Timezone:  row.Timezone,
			CreatedTs: nowUnix(),
			UpdatedTs: nowUnix(),
		})
	}

	ctx := c.Request().Context()
	if _, err := s.store.GetChat(ctx, in.ChatID.Int64()); err != nil {
		return storeError(c, err, "chat not found")
	}
	if err := s.store.ReplaceWorkingSchedule(ctx, &store.ReplaceWorkingSchedule{
		ChatID: in.ChatID.Int64(),
		Rows:   rows,
	}); err != nil {
		return errInternal(c, err)
	}
	return s.listSchedule(c, in.ChatID.Int64())
}

func (s *APIV1Service) getWorkingSchedule(c echo.Context) error {
	var in struct {
		ChatID ID `json:"chatId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}
	return s.listSchedule(c, in.ChatID.Int64())
}

func (s *APIV1Service) listSchedule(c echo.Context, chatID int64) error {
	rows, err := s.store.ListWorkingSchedules(c.Request().Context(), &store.FindWorkingSchedule{ChatID: &chatID})
	if err != nil {
		return errInternal(c, err)
	}

	type scheduleView struct {
		Weekday   int32  `json:"weekday"`
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Timezone  string `json:"timezone"`
	}
	views := make([]*scheduleView, 0, len(rows))
	for _, row := range rows {
		views = append(views, &scheduleView{
			Weekday:   row.Weekday,
			StartTime: row.StartTime,
			EndTime:   row.EndTime,
			Timezone:  row.Timezone,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"rows": views})
}

func (s *APIV1Service) addHoliday(c echo.Context) error {
	var in struct {
		ChatID ID     `json:"chatId"`
		Date   string `json:"date"`
		Name   string `json:"name"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}
	if err := validateHolidayDate(in.Date); err != nil {
		return errBadRequest(c, err.Error())
	}

	holiday, err := s.store.CreateHoliday(c.Request().Context(), &store.Holiday{
		ChatID:    ptr(in.ChatID.Int64()),
		Date:      in.Date,
		Name:      in.Name,
		CreatedTs: nowUnix(),
	})
	if err != nil {
		return storeError(c, err, "chat not found")
	}
	return c.JSON(http.StatusOK, holidayView(holiday))
}

func (s *APIV1Service) removeHoliday(c echo.Context) error {
	var in struct {
		ChatID ID     `json:"chatId"`
		Date   string `json:"date"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 || in.Date == "" {
		return errBadRequest(c, "chatId and date are required")
	}

	removed, err := s.store.DeleteHoliday(c.Request().Context(), &store.DeleteHoliday{
		ChatID: ptr(in.ChatID.Int64()),
		Date:   in.Date,
	})
	if err != nil {
		return errInternal(c, err)
	}
	if !removed {
		return errNotFound(c, "holiday not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": true})
}

func (s *APIV1Service) getHolidays(c echo.Context) error {
	var in struct {
		ChatID ID `json:"chatId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}

	holidays, err := s.store.ListHolidays(c.Request().Context(), &store.FindHoliday{
		ChatID: ptr(in.ChatID.Int64()),
	})
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"holidays": holidayViews(holidays)})
}

func (s *APIV1Service) getChats(c echo.Context) error {
	var in struct {
		MonitoringEnabled *bool `json:"monitoringEnabled"`
		IncludeArchived   bool  `json:"includeArchived"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	find := &store.FindChat{MonitoringEnabled: in.MonitoringEnabled}
	if !in.IncludeArchived {
		normal := store.Normal
		find.RowStatus = &normal
	}
	chats, err := s.store.ListChats(c.Request().Context(), find)
	if err != nil {
		return errInternal(c, err)
	}
	views := make([]*chatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, toChatView(chat))
	}
	return c.JSON(http.StatusOK, echo.Map{"chats": views})
}

func (s *APIV1Service) getChatByID(c echo.Context) error {
	var in struct {
		ChatID ID `json:"chatId"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.ChatID == 0 {
		return errBadRequest(c, "chatId is required")
	}

	chat, err := s.store.GetChat(c.Request().Context(), in.ChatID.Int64())
	if err != nil {
		return storeError(c, err, "chat not found")
	}
	return c.JSON(http.StatusOK, toChatView(chat))
}
