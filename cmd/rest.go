package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-autopost/ui/cronjob"
	"github.com/AzielCF/az-autopost/ui/rest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the admin, tracking and cron API over http",
	Long:  `Starts the HTTP server. With RUN_MODE=local the cron actions also run in-process.`,
	Run:   restServer,
}

func init() {
	restCmd.Flags().Int("rate-limit", 300, "requests per minute per IP, 0 disables the limiter")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	initApp(commandContext(cmd))

	if cfg.App.AdminPassword == "" {
		logrus.Warn("[REST] ADMIN_PASSWORD is empty, admin routes will reject every request without the cron header")
	}
	rateLimit, _ := cmd.Flags().GetInt("rate-limit")

	app := rest.NewApp(rest.Options{
		BasePath:       cfg.App.BasePath,
		AdminPassword:  cfg.App.AdminPassword,
		CronHeader:     cfg.App.CronHeader,
		CookieDays:     cfg.Tracking.CookieDays,
		Debug:          cfg.App.Debug,
		TrustedProxies: cfg.App.TrustedProxies,
		AllowOrigins:   cfg.App.CorsAllowedOrigins,
		RateLimit:      rateLimit,
	}, rest.Services{
		Scheduler:  schedulerUsecase,
		Posts:      postUsecase,
		Drafts:     draftsUsecase,
		Tracking:   trackingUsecase,
		Health:     healthUsecase,
		NotifyPool: notifyPool,
	})

	var runner *cronjob.Runner
	if cfg.App.RunMode == "local" {
		var err error
		runner, err = cronjob.New(schedulerUsecase, cronjob.DefaultSchedule)
		if err != nil {
			logrus.Fatalf("[SCHEDULER] %v", err)
		}
		runner.Start()
	}

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if runner != nil {
			runner.Stop()
		}
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	logrus.Infof("[REST] listening on :%s (run mode %s)", cfg.App.Port, cfg.App.RunMode)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}
	StopApp()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
