// Package server hosts the HTTP surface: the Telegram webhook endpoint, the
// admin API and the operational endpoints (health, metrics).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/delivery"
	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/plugin/telegram"
	apiv1 "github.com/hrygo/slawatch/server/router/api/v1"
	"github.com/hrygo/slawatch/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	engine     *sla.Service
	delivery   *delivery.Worker
	exporter   *metrics.Exporter
}

func NewServer(p *profile.Profile, st *store.Store, engine *sla.Service, classifier sla.Classifier, dw *delivery.Worker, exporter *metrics.Exporter) (*Server, error) {
	e := echo.New()
	e.Debug = false
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Profile:    p,
		Store:      st,
		echoServer: e,
		engine:     engine,
		delivery:   dw,
		exporter:   exporter,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelDebug
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			slog.Log(context.Background(), level, "http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"requestId", v.RequestID,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	e.POST(WebhookPath, s.handleTelegramWebhook)

	rootGroup := e.Group("")
	apiService := apiv1.NewAPIV1Service(p, st, engine, classifier, dw)
	apiService.RegisterRoutes(rootGroup)

	return s, nil
}

// Start blocks serving requests until Shutdown is called. It returns
// http.ErrServerClosed on a clean shutdown.
func (s *Server) Start(context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server listening", "address", address, "mode", s.Profile.Mode)
	return s.echoServer.Start(address)
}

// Shutdown stops accepting connections and drains in-flight requests, then
// closes the database.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server shut down")
}

// RegisterWebhook points the bot at this instance's webhook endpoint.
func (s *Server) RegisterWebhook(ctx context.Context, channel *telegram.Channel) error {
	if s.Profile.InstanceURL == "" {
		return errors.New("instance URL is required to register the webhook")
	}
	url := strings.TrimRight(s.Profile.InstanceURL, "/") + WebhookPath
	return channel.SetWebhook(ctx, url, s.Profile.TelegramWebhookSecret, false)
}
