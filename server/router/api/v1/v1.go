// Package v1 is the admin RPC surface: JSON procedures grouped into routers,
// POSTed to /api/v1/{router}/{procedure}. Inputs are strict (unknown fields
// rejected); 64-bit transport ids travel as strings.
package v1

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/slawatch/internal/delivery"
	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/store"
)

// APIV1Service wires the procedure handlers to their dependencies.
type APIV1Service struct {
	profile    *profile.Profile
	store      *store.Store
	engine     *sla.Service
	classifier sla.Classifier
	delivery   *delivery.Worker
}

func NewAPIV1Service(p *profile.Profile, st *store.Store, engine *sla.Service, cl sla.Classifier, dw *delivery.Worker) *APIV1Service {
	return &APIV1Service{
		profile:    p,
		store:      st,
		engine:     engine,
		classifier: cl,
		delivery:   dw,
	}
}

// RegisterRoutes mounts every router group on /api/v1.
func (s *APIV1Service) RegisterRoutes(root *echo.Group) {
	api := root.Group("/api/v1")

	slaGroup := api.Group("/sla", s.requireTier(tierAuthed))
	slaGroup.POST("/createRequest", s.createRequest)
	slaGroup.POST("/classifyMessage", s.classifyMessage)
	slaGroup.POST("/startTimer", s.startTimer)
	slaGroup.POST("/stopTimer", s.stopTimer)
	slaGroup.POST("/getRequests", s.getRequests)
	slaGroup.POST("/getRequestById", s.getRequestByID)
	slaGroup.POST("/getActiveTimers", s.getActiveTimers)

	chatGroup := api.Group("/chat", s.requireTier(tierManager))
	chatGroup.POST("/registerChat", s.registerChat)
	chatGroup.POST("/updateChat", s.updateChat)
	chatGroup.POST("/updateWorkingSchedule", s.updateWorkingSchedule)
	chatGroup.POST("/addHoliday", s.addHoliday)
	chatGroup.POST("/removeHoliday", s.removeHoliday)
	chatGroup.POST("/getChats", s.getChats)
	chatGroup.POST("/getChatById", s.getChatByID)
	chatGroup.POST("/getWorkingSchedule", s.getWorkingSchedule)
	chatGroup.POST("/getHolidays", s.getHolidays)

	alertGroup := api.Group("/alert", s.requireTier(tierManager))
	alertGroup.POST("/createAlert", s.createAlert)
	alertGroup.POST("/resolveAlert", s.resolveAlert)
	alertGroup.POST("/notifyAccountant", s.notifyAccountant)
	alertGroup.POST("/updateDeliveryStatus", s.updateDeliveryStatus)
	alertGroup.POST("/getAlerts", s.getAlerts)
	alertGroup.POST("/getAlertById", s.getAlertByID)
	alertGroup.POST("/getActiveAlerts", s.getActiveAlerts)
	alertGroup.POST("/getAlertStats", s.getAlertStats)

	analyticsGroup := api.Group("/analytics", s.requireTier(tierManager))
	analyticsGroup.POST("/getDashboard", s.getDashboard)
	analyticsGroup.POST("/getAccountantStats", s.getAccountantStats)
	analyticsGroup.POST("/getSlaCompliance", s.getSlaCompliance)
	analyticsGroup.POST("/getResponseTime", s.getResponseTime)
	analyticsGroup.POST("/exportReport", s.exportReport)

	settingsGroup := api.Group("/settings", s.requireTier(tierAdmin))
	settingsGroup.POST("/getGlobalSettings", s.getGlobalSettings)
	settingsGroup.POST("/updateGlobalSettings", s.updateGlobalSettings)
	settingsGroup.POST("/getGlobalHolidays", s.getGlobalHolidays)
	settingsGroup.POST("/addGlobalHoliday", s.addGlobalHoliday)
	settingsGroup.POST("/removeGlobalHoliday", s.removeGlobalHoliday)
	settingsGroup.POST("/bulkAddHolidays", s.bulkAddHolidays)
	settingsGroup.POST("/seedRussianHolidays", s.seedRussianHolidays)
}

// Authorization tiers. Higher tiers include the lower ones.
type tier int

const (
	tierAuthed tier = iota
	tierManager
	tierAdmin
)

// tierOf maps a bearer token to the highest tier it grants, or -1.
func (s *APIV1Service) tierOf(token string) tier {
	switch {
	case token == "":
		return -1
	case s.profile.AdminToken != "" && token == s.profile.AdminToken:
		return tierAdmin
	case s.profile.ManagerToken != "" && token == s.profile.ManagerToken:
		return tierManager
	case s.profile.AuthedToken != "" && token == s.profile.AuthedToken:
		return tierAuthed
	default:
		return -1
	}
}

func (s *APIV1Service) requireTier(minimum tier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Dev mode runs without tokens configured.
			if s.profile.IsDev() && s.profile.AdminToken == "" &&
				s.profile.ManagerToken == "" && s.profile.AuthedToken == "" {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token := strings.TrimPrefix(header, "Bearer ")
			granted := s.tierOf(token)
			if granted < 0 {
				return errUnauthenticated(c)
			}
			if granted < minimum {
				return errForbidden(c)
			}
			return next(c)
		}
	}
}

// errorBody is the stable error envelope. No stack traces cross this line.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func errBadRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Error: message, Code: "BAD_REQUEST"})
}

func errConflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, errorBody{Error: message, Code: "CONFLICT"})
}

func errNotFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, errorBody{Error: message, Code: "NOT_FOUND"})
}

func errUnauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody{Error: "authentication required", Code: "UNAUTHENTICATED"})
}

func errForbidden(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorBody{Error: "insufficient permissions", Code: "PERMISSION_DENIED"})
}

// errInternal logs the real error and returns an opaque envelope.
func errInternal(c echo.Context, err error) error {
	slog.Error("api request failed",
		"path", c.Path(),
		"error", err,
	)
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error", Code: "INTERNAL"})
}

// storeError maps driver sentinels onto the envelope.
func storeError(c echo.Context, err error, notFoundMsg string) error {
	switch {
	case err == store.ErrNotFound:
		return errNotFound(c, notFoundMsg)
	case err == store.ErrAlreadyExists:
		return errConflict(c, "resource already exists")
	default:
		return errInternal(c, err)
	}
}
