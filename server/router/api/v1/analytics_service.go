package v1

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/slawatch/store"
)

func (s *APIV1Service) timezone(c echo.Context) string {
	settings, err := s.store.GetGlobalSettings(c.Request().Context())
	if err != nil {
		return store.DefaultGlobalSettings().DefaultTimezone
	}
	return settings.DefaultTimezone
}

func (s *APIV1Service) getDashboard(c echo.Context) error {
	var in timeRange
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	from, to := in.bounds(time.Now())

	stats, err := s.store.GetDashboardStats(c.Request().Context(), from, to)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *APIV1Service) getAccountantStats(c echo.Context) error {
	var in timeRange
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	from, to := in.bounds(time.Now())

	stats, err := s.store.GetAccountantStats(c.Request().Context(), from, to)
	if err != nil {
		return errInternal(c, err)
	}

	type statView struct {
		AccountantID       ID       `json:"accountantId"`
		Answered           int64    `json:"answered"`
		Breached           int64    `json:"breached"`
		AvgResponseMinutes *float64 `json:"avgResponseMinutes"`
	}
	views := make([]*statView, 0, len(stats))
	for _, stat := range stats {
		views = append(views, &statView{
			AccountantID:       idOf(stat.AccountantID),
			Answered:           stat.Answered,
			Breached:           stat.Breached,
			AvgResponseMinutes: stat.AvgResponseMinutes,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"accountants": views})
}

func (s *APIV1Service) getSlaCompliance(c echo.Context) error {
	var in timeRange
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	from, to := in.bounds(time.Now())

	buckets, err := s.store.GetSlaCompliance(c.Request().Context(), from, to, s.timezone(c))
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"days": buckets})
}

func (s *APIV1Service) getResponseTime(c echo.Context) error {
	var in timeRange
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	from, to := in.bounds(time.Now())

	buckets, err := s.store.GetResponseTimeStats(c.Request().Context(), from, to, s.timezone(c))
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"days": buckets})
}

// exportReport renders the daily compliance and response-time series as a CSV
// attachment.
func (s *APIV1Service) exportReport(c echo.Context) error {
	var in timeRange
	if err := bindStrict(c, &in); err != nil {
		return errBadRequest(c, err.Error())
	}
	from, to := in.bounds(time.Now())
	ctx := c.Request().Context()
	tz := s.timezone(c)

	compliance, err := s.store.GetSlaCompliance(ctx, from, to, tz)
	if err != nil {
		return errInternal(c, err)
	}
	responseTimes, err := s.store.GetResponseTimeStats(ctx, from, to, tz)
	if err != nil {
		return errInternal(c, err)
	}

	byDate := map[string]*store.ResponseTimeBucket{}
	for _, bucket := range responseTimes {
		byDate[bucket.Date] = bucket
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"date", "total", "on_time", "breached", "avg_response_minutes", "max_response_minutes"})
	for _, day := range compliance {
		avg, max := "", ""
		if rt, ok := byDate[day.Date]; ok {
			if rt.AvgMinutes != nil {
				avg = fmt.Sprintf("%.1f", *rt.AvgMinutes)
			}
			if rt.MaxMinutes != nil {
				max = fmt.Sprintf("%d", *rt.MaxMinutes)
			}
		}
		_ = writer.Write([]string{
			day.Date,
			fmt.Sprintf("%d", day.Total),
			fmt.Sprintf("%d", day.OnTime),
			fmt.Sprintf("%d", day.Breached),
			avg,
			max,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errInternal(c, err)
	}

	filename := fmt.Sprintf("sla-report-%s.csv", time.Now().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "text/csv", buf.Bytes())
}
