package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/slawatch/store"
)

type holidayJSON struct {
	ChatID *ID    `json:"chatId"`
	Date   string `json:"date"`
	Name   string `json:"name"`
}

func holidayView(h *store.Holiday) *holidayJSON {
	return &holidayJSON{ChatID: idPtr(h.ChatID), Date: h.Date, Name: h.Name}
}

func holidayViews(holidays []*store.Holiday) []*holidayJSON {
	views := make([]*holidayJSON, 0, len(holidays))
	for _, h := range holidays {
		views = append(views, holidayView(h))
	}
	return views
}

type settingsView struct {
	DefaultTimezone            string  `json:"defaultTimezone"`
	WorkingDays                []int64 `json:"workingDays"`
	WorkStartTime              string  `json:"workStartTime"`
	WorkEndTime                string  `json:"workEndTime"`
	SlaThresholdMinutes        int32   `json:"slaThresholdMinutes"`
	MaxEscalations             int32   `json:"maxEscalations"`
	EscalationIntervalMinutes  int32   `json:"escalationIntervalMinutes"`
	WarningPercent             int32   `json:"warningPercent"`
	AIConfidenceThreshold      float64 `json:"aiConfidenceThreshold"`
	KeywordConfidenceThreshold float64 `json:"keywordConfidenceThreshold"`
	CacheTTLHours              int32   `json:"cacheTtlHours"`
	GlobalManagerIDs           []ID    `json:"globalManagerIds"`
	PreviewLength              int32   `json:"previewLength"`
	RetentionDays              int32   `json:"retentionDays"`
}

func toSettingsView(s *store.GlobalSettings) *settingsView {
	return &settingsView{
		DefaultTimezone:            s.DefaultTimezone,
		WorkingDays:                s.WorkingDays,
		WorkStartTime:              s.WorkStartTime,
		WorkEndTime:                s.WorkEndTime,
		SlaThresholdMinutes:        s.SlaThresholdMinutes,
		MaxEscalations:             s.MaxEscalations,
		EscalationIntervalMinutes:  s.EscalationIntervalMinutes,
		WarningPercent:             s.WarningPercent,
		AIConfidenceThreshold:      s.AIConfidenceThreshold,
		KeywordConfidenceThreshold: s.KeywordConfidenceThreshold,
		CacheTTLHours:              s.CacheTTLHours,
		GlobalManagerIDs:           ids(s.GlobalManagerIDs),
		PreviewLength:              s.PreviewLength,
		RetentionDays:              s.RetentionDays,
	}
}

func (s *APIV1Service) getGlobalSettings(c echo.Context) error {
	settings, err := s.store.GetGlobalSettings(c.Request().Context())
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, toSettingsView(settings))
}

func (s *APIV1Service) updateGlobalSettings(c echo.Context) error {
	var in struct {
		DefaultTimezone            *string  `json:"defaultTimezone"`
		WorkingDays                []int64  `json:"workingDays"`
		WorkStartTime              *string  `json:"workStartTime"`
		WorkEndTime                *string  `json:"workEndTime"`
		SlaThresholdMinutes        *int32   `json:"slaThresholdMinutes"`
		MaxEscalations             *int32   `json:"maxEscalations"`
		EscalationIntervalMinutes  *int32   `json:"escalationIntervalMinutes"`
		WarningPercent             *int32   `json:"warningPercent"`
		AIConfidenceThreshold      *float64 `json:"aiConfidenceThreshold"`
		KeywordConfidenceThreshold *float64 `json:"keywordConfidenceThreshold"`
		CacheTTLHours              *int32   `json:"cacheTtlHours"`
		GlobalManagerIDs           []ID     `json:"globalManagerIds"`
		PreviewLength              *int32   `json:"previewLength"`
		RetentionDays              *int32   `json:"retentionDays"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	if in.WorkStartTime != nil {
		if err := validateClock(*in.WorkStartTime); err != nil {
			return errBadRequest(c, err.Error())
		}
	}
	if in.WorkEndTime != nil {
		if err := validateClock(*in.WorkEndTime); err != nil {
			return errBadRequest(c, err.Error())
		}
	}
	for _, day := range in.WorkingDays {
		if day < 1 || day > 7 {
			return errBadRequest(c, "workingDays entries must be 1 (Monday) through 7 (Sunday)")
		}
	}
	if in.SlaThresholdMinutes != nil && *in.SlaThresholdMinutes <= 0 {
		return errBadRequest(c, "slaThresholdMinutes must be positive")
	}
	if in.MaxEscalations != nil && *in.MaxEscalations < 0 {
		return errBadRequest(c, "maxEscalations must not be negative")
	}
	if in.WarningPercent != nil && (*in.WarningPercent < 0 || *in.WarningPercent > 100) {
		return errBadRequest(c, "warningPercent must be between 0 and 100")
	}
	if in.AIConfidenceThreshold != nil && (*in.AIConfidenceThreshold < 0 || *in.AIConfidenceThreshold > 1) {
		return errBadRequest(c, "aiConfidenceThreshold must be between 0 and 1")
	}
	if in.KeywordConfidenceThreshold != nil && (*in.KeywordConfidenceThreshold < 0 || *in.KeywordConfidenceThreshold > 1) {
		return errBadRequest(c, "keywordConfidenceThreshold must be between 0 and 1")
	}
	if in.RetentionDays != nil && *in.RetentionDays <= 0 {
		return errBadRequest(c, "retentionDays must be positive")
	}

	update := &store.UpdateGlobalSettings{
		DefaultTimezone:            in.DefaultTimezone,
		WorkingDays:                in.WorkingDays,
		WorkStartTime:              in.WorkStartTime,
		WorkEndTime:                in.WorkEndTime,
		SlaThresholdMinutes:        in.SlaThresholdMinutes,
		MaxEscalations:             in.MaxEscalations,
		EscalationIntervalMinutes:  in.EscalationIntervalMinutes,
		WarningPercent:             in.WarningPercent,
		AIConfidenceThreshold:      in.AIConfidenceThreshold,
		KeywordConfidenceThreshold: in.KeywordConfidenceThreshold,
		CacheTTLHours:              in.CacheTTLHours,
		PreviewLength:              in.PreviewLength,
		RetentionDays:              in.RetentionDays,
		UpdatedTs:                  ptr(nowUnix()),
	}
	if in.GlobalManagerIDs != nil {
		update.GlobalManagerIDs = int64s(in.GlobalManagerIDs)
	}

	settings, err := s.store.UpdateGlobalSettings(c.Request().Context(), update)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, toSettingsView(settings))
}

func (s *APIV1Service) getGlobalHolidays(c echo.Context) error {
	holidays, err := s.store.ListHolidays(c.Request().Context(), &store.FindHoliday{GlobalOnly: true})
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"holidays": holidayViews(holidays)})
}

func (s *APIV1Service) addGlobalHoliday(c echo.Context) error {
	var in struct {
		Date string `json:"date"`
		Name string `json:"name"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if err := validateHolidayDate(in.Date); err != nil {
		return errBadRequest(c, err.Error())
	}

	holiday, err := s.store.CreateHoliday(c.Request().Context(), &store.Holiday{
		Date:      in.Date,
		Name:      in.Name,
		CreatedTs: nowUnix(),
	})
	if err != nil {
		return storeError(c, err, "holiday not found")
	}
	return c.JSON(http.StatusOK, holidayView(holiday))
}

func (s *APIV1Service) removeGlobalHoliday(c echo.Context) error {
	var in struct {
		Date string `json:"date"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if in.Date == "" {
		return errBadRequest(c, "date is required")
	}

	removed, err := s.store.DeleteHoliday(c.Request().Context(), &store.DeleteHoliday{Date: in.Date})
	if err != nil {
		return errInternal(c, err)
	}
	if !removed {
		return errNotFound(c, "holiday not found")
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": true})
}

// bulkAddHolidays inserts many global holidays at once. Dates already present
// are counted as skipped, not errors.
func (s *APIV1Service) bulkAddHolidays(c echo.Context) error {
	var in struct {
		Holidays []struct {
			Date string `json:"date"`
			Name string `json:"name"`
		} `json:"holidays"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	if len(in.Holidays) == 0 {
		return errBadRequest(c, "holidays list is empty")
	}
	for _, h := range in.Holidays {
		if err := validateHolidayDate(h.Date); err != nil {
			return errBadRequest(c, err.Error())
		}
	}

	ctx := c.Request().Context()
	added, skipped := 0, 0
	for _, h := range in.Holidays {
		_, err := s.store.CreateHoliday(ctx, &store.Holiday{
			Date:      h.Date,
			Name:      h.Name,
			CreatedTs: nowUnix(),
		})
		switch err {
		case nil:
			added++
		case store.ErrAlreadyExists:
			skipped++
		default:
			return errInternal(c, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"added": added, "skipped": skipped})
}

// Fixed federal non-working dates, month-day. Long New Year holidays included.
var russianHolidays = []struct {
	monthDay string
	name     string
}{
	{"01-01", "Новогодние каникулы"},
	{"01-02", "Новогодние каникулы"},
	{"01-03", "Новогодние каникулы"},
	{"01-04", "Новогодние каникулы"},
	{"01-05", "Новогодние каникулы"},
	{"01-06", "Новогодние каникулы"},
	{"01-07", "Рождество Христово"},
	{"01-08", "Новогодние каникулы"},
	{"02-23", "День защитника Отечества"},
	{"03-08", "Международный женский день"},
	{"05-01", "Праздник Весны и Труда"},
	{"05-09", "День Победы"},
	{"06-12", "День России"},
	{"11-04", "День народного единства"},
}

// seedRussianHolidays fills the global holiday calendar with the fixed
// federal dates for a year (or the whole accepted window when year is 0).
func (s *APIV1Service) seedRussianHolidays(c echo.Context) error {
	var in struct {
		Year int `json:"year"`
	}
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}

	years := make([]int, 0)
	switch {
	case in.Year == 0:
		for year := holidayYearMin; year <= holidayYearMax; year++ {
			years = append(years, year)
		}
	case in.Year >= holidayYearMin && in.Year <= holidayYearMax:
		years = append(years, in.Year)
	default:
		return errBadRequest(c, fmt.Sprintf("year must be between %d and %d", holidayYearMin, holidayYearMax))
	}

	ctx := c.Request().Context()
	added, skipped := 0, 0
	for _, year := range years {
		for _, h := range russianHolidays {
			_, err := s.store.CreateHoliday(ctx, &store.Holiday{
				Date:      fmt.Sprintf("%d-%s", year, h.monthDay),
				Name:      h.name,
				CreatedTs: nowUnix(),
			})
			switch err {
			case nil:
				added++
			case store.ErrAlreadyExists:
				skipped++
			default:
				return errInternal(c, err)
			}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"added": added, "skipped": skipped})
}
