package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/slawatch/internal/classifier"
	"github.com/hrygo/slawatch/internal/delivery"
	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/internal/profile"
	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/internal/retention"
	"github.com/hrygo/slawatch/internal/sla"
	"github.com/hrygo/slawatch/internal/version"
	"github.com/hrygo/slawatch/plugin/telegram"
	"github.com/hrygo/slawatch/server"
	"github.com/hrygo/slawatch/store"
	"github.com/hrygo/slawatch/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "slawatch",
	Short: "SLA monitoring for client chats: tracks client requests and alerts managers before response deadlines slip.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// .env is a convenience for direct binary execution; process managers
		// inject the environment themselves.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Version:     version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid configuration", "error", err)
			os.Exit(1)
		}
		setupLogger(instanceProfile)

		if err := run(instanceProfile); err != nil {
			slog.Error("fatal", "error", err)
			os.Exit(1)
		}
	},
}

func run(instanceProfile *profile.Profile) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return fmt.Errorf("failed to create db driver: %w", err)
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	jobQueue := queue.New(storeInstance)

	var aiEngine classifier.Engine
	if instanceProfile.IsAIEnabled() {
		aiEngine = classifier.NewAIEngine(instanceProfile)
		slog.Info("AI classifier enabled",
			"provider", instanceProfile.AIProvider,
			"model", instanceProfile.AIModel,
		)
	} else {
		slog.Info("AI classifier disabled, keyword cascade only")
	}
	cascade := classifier.New(storeInstance, aiEngine, classifier.NewBreaker(exporter), exporter)

	engine := sla.NewService(storeInstance, jobQueue, cascade, exporter)

	var channel *telegram.Channel
	if instanceProfile.TelegramBotToken != "" {
		channel, err = telegram.NewChannel(instanceProfile.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("failed to create telegram channel: %w", err)
		}
	} else {
		slog.Warn("telegram bot token not configured, alert delivery is disabled")
	}
	deliveryWorker := delivery.NewWorker(storeInstance, channel, engine, exporter)

	s, err := server.NewServer(instanceProfile, storeInstance, engine, cascade, deliveryWorker, exporter)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Re-arm timers for requests that were open across the restart before the
	// workers start claiming jobs.
	report, err := engine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}
	slog.Info("startup recovery finished",
		"pending", report.TotalPending,
		"rescheduled", report.Rescheduled,
		"breached", report.Breached,
		"alreadyActive", report.AlreadyActive,
		"failed", report.Failed,
	)

	sweeper := retention.NewSweeper(storeInstance, jobQueue)
	if err := sweeper.Arm(ctx); err != nil {
		return fmt.Errorf("failed to arm retention sweep: %w", err)
	}

	if instanceProfile.Mode == "prod" {
		if err := s.RegisterWebhook(ctx, channel); err != nil {
			return fmt.Errorf("failed to register webhook: %w", err)
		}
		slog.Info("telegram webhook registered", "url", instanceProfile.InstanceURL+server.WebhookPath)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.NewWorker(storeInstance, queue.WorkerConfig{
			Queue:       queue.QueueSlaTimers,
			Concurrency: 10,
		}, engine.HandleTimerJob, exporter).Start(gctx)
	})
	g.Go(func() error {
		return queue.NewWorker(storeInstance, queue.WorkerConfig{
			Queue:         queue.QueueAlerts,
			Concurrency:   5,
			RatePerSecond: 30,
		}, deliveryWorker.HandleAlertJob, exporter).Start(gctx)
	})
	g.Go(func() error {
		return queue.NewWorker(storeInstance, queue.WorkerConfig{
			Queue:       queue.QueueRetention,
			Concurrency: 1,
		}, sweeper.HandleSweepJob, exporter).Start(gctx)
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)
	go func() {
		sig := <-c
		slog.Info("shutting down", "signal", sig.String())
		s.Shutdown(ctx)
		cancel()
	}()

	printGreetings(instanceProfile)

	if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return fmt.Errorf("server stopped: %w", err)
	}
	return g.Wait()
}

func setupLogger(instanceProfile *profile.Profile) {
	opts := &slog.HandlerOptions{Level: instanceProfile.SlogLevel()}
	var handler slog.Handler
	if instanceProfile.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28091)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28091, "port of server")
	rootCmd.PersistentFlags().String("dsn", "", "Postgres data source name (aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the public url of this slawatch instance")

	for _, flag := range []string{"mode", "addr", "port", "dsn", "instance-url"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("slawatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("slawatch %s started\n", instanceProfile.Version)
	fmt.Printf("Mode: %s\n", instanceProfile.Mode)
	if len(instanceProfile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", instanceProfile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to execute command", "error", err)
		os.Exit(1)
	}
}
