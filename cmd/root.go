package cmd

import (
	"context"
	"os"
	"time"

	"github.com/AzielCF/az-autopost/core/config"
	coreDB "github.com/AzielCF/az-autopost/core/database"
	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainHealth "github.com/AzielCF/az-autopost/domains/health"
	domainLock "github.com/AzielCF/az-autopost/domains/lock"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	"github.com/AzielCF/az-autopost/infrastructure/sheets"
	"github.com/AzielCF/az-autopost/infrastructure/valkey"
	"github.com/AzielCF/az-autopost/integrations/contentgen"
	"github.com/AzielCF/az-autopost/integrations/news"
	"github.com/AzielCF/az-autopost/integrations/webhook"
	"github.com/AzielCF/az-autopost/integrations/x"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/AzielCF/az-autopost/pkg/utils"
	"github.com/AzielCF/az-autopost/pkg/workerpool"
	"github.com/AzielCF/az-autopost/repository"
	"github.com/AzielCF/az-autopost/usecase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg *config.Config

	store      *repository.ResilientRepository
	vkClient   *valkey.Client
	notifyPool *workerpool.Pool
	poolCancel context.CancelFunc

	// Usecase
	schedulerUsecase domainCron.IScheduler
	draftsUsecase    domainGenerator.IDraftUsecase
	postUsecase      domainPost.IPostUsecase
	trackingUsecase  domainTracking.ITrackingUsecase
	healthUsecase    domainHealth.IHealthUsecase
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-autopost",
	Short: "Scheduled social posting with AI generated drafts",
	Long: `Generates drafts with an AI model, places them on civil-time slots and
publishes them to X when due. Run "rest" for the HTTP server, or trigger
single cron actions with "cron".`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

func initFlags() {
	rootCmd.PersistentFlags().StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "hide or displaying log with --debug <true/false> | example: --debug=true")
	rootCmd.PersistentFlags().String("run-mode", "", `"local" runs the in-process cron, "server" waits for /api/cron | example: --run-mode=local`)
	rootCmd.PersistentFlags().String("store-path", "", `local SQLite store file | example: --store-path="storages/autopost.db"`)
	rootCmd.PersistentFlags().Bool("dry-run", false, "log posts instead of publishing them | example: --dry-run=true")

	_ = viper.BindPFlag("app_port", rootCmd.PersistentFlags().Lookup("port"))
	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("run_mode", rootCmd.PersistentFlags().Lookup("run-mode"))
	_ = viper.BindPFlag("store_local_path", rootCmd.PersistentFlags().Lookup("store-path"))
	_ = viper.BindPFlag("x_dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
}

// initEnvConfig loads the environment and lets explicit flags override it.
func initEnvConfig() {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	if port := viper.GetString("app_port"); port != "" {
		cfg.App.Port = port
	}
	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if mode := viper.GetString("run_mode"); mode != "" {
		cfg.App.RunMode = mode
	}
	if path := viper.GetString("store_local_path"); path != "" {
		cfg.Store.LocalPath = path
	}
	if viper.GetBool("x_dry_run") {
		cfg.X.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("[CONFIG] %v", err)
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.WithFields(config.GetAllSettings()).Debug("[CONFIG] loaded")
}

// initApp opens the stores and builds every usecase.
func initApp(ctx context.Context) {
	if err := cfg.EnsureStorages(); err != nil {
		logrus.Fatalf("[APP] failed to create storages: %v", err)
	}
	clock := civiltime.SystemClock{}
	owner := utils.InstanceID(cfg.App.InstanceID, cfg.Paths.Storages)

	localDB, err := coreDB.OpenLocal(cfg)
	if err != nil {
		logrus.Fatalf("[STORE] %v", err)
	}
	local := repository.NewGormRepository(localDB, clock, "sqlite", owner)

	var remote repository.Backend
	switch cfg.Store.Remote {
	case "sheets":
		tables, err := sheets.NewClient(ctx, sheets.Config{
			SpreadsheetID:       cfg.Sheets.SpreadsheetID,
			ServiceAccountEmail: cfg.Sheets.ServiceAccountEmail,
			PrivateKey:          cfg.Sheets.PrivateKey,
		})
		if err != nil {
			logrus.WithError(err).Warn("[STORE] sheets unavailable, running on the local store")
		} else {
			remote = repository.NewSheetsRepository(tables, clock, owner)
		}
	case "postgres":
		db, err := coreDB.OpenRemote(cfg)
		if err != nil {
			logrus.WithError(err).Warn("[STORE] postgres unavailable, running on the local store")
		} else {
			remote = repository.NewGormRepository(db, clock, "postgres", owner)
		}
	}

	store = repository.NewResilientRepository(remote, local, clock, cfg.Store.ProbeInterval)
	if err := store.Init(ctx); err != nil {
		logrus.Fatalf("[STORE] failed to init %s: %v", store.Name(), err)
	}
	logrus.Infof("[STORE] using %s (mode %s)", store.Name(), store.Mode())

	var locker domainLock.ILocker = store
	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.WithError(err).Warn("[LOCK] valkey unavailable, falling back to store locks")
		} else {
			locker = valkey.NewLocker(vkClient, owner)
			logrus.Infof("[LOCK] using valkey at %s", cfg.Database.ValkeyAddress)
		}
	}

	var backend contentgen.Backend
	switch cfg.AI.Provider {
	case "gemini":
		if cfg.AI.GeminiAPIKey != "" {
			backend = contentgen.NewGeminiBackend(cfg.AI.GeminiAPIKey, cfg.AI.GeminiModel)
		}
	case "openai":
		if cfg.AI.OpenAIAPIKey != "" {
			backend = contentgen.NewOpenAIBackend(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIModel)
		}
	}
	if backend == nil {
		logrus.Warnf("[GENERATE] provider %q has no API key, drafts will be mock content", cfg.AI.Provider)
	}
	generator := contentgen.NewGenerator(backend, cfg.AI.MaxAttempts, cfg.AI.NGWords, nil)

	var newsSource domainGenerator.INewsSource
	if cfg.News.Enabled {
		newsSource = news.NewFeed(cfg.News.FeedURL, cfg.News.TTL, clock)
	}

	var poolCtx context.Context
	poolCtx, poolCancel = context.WithCancel(context.Background())
	notifyPool = workerpool.New("notify", cfg.Notify.Workers, cfg.Notify.QueueSize)
	notifyPool.Start(poolCtx)
	notifier := webhook.New(cfg.Notify.WebhookURL, notifyPool)

	publisher := x.NewClient(cfg.X.APIBase, cfg.X.AccessToken, cfg.X.DryRun)
	engine := dedupe.NewEngine(cfg.Schedule.SimilarityThreshold, cfg.Schedule.DedupeWindow)
	jitter := usecase.NewJitter(time.Duration(cfg.Schedule.JitterMinutes)*time.Minute, nil)
	committer := usecase.NewCommitterService(store, engine)

	schedulerUsecase, err = usecase.NewSchedulerService(usecase.SchedulerDeps{
		Store:     store,
		Locker:    locker,
		CronLogs:  store,
		Committer: committer,
		Generator: generator,
		News:      newsSource,
		Publisher: publisher,
		Notifier:  notifier,
		Engine:    engine,
		Jitter:    jitter,
		Clock:     clock,
		Config:    cfg.Schedule,
		NGWords:   cfg.AI.NGWords,
	})
	if err != nil {
		logrus.Fatalf("[SCHEDULER] %v", err)
	}

	draftsUsecase, err = usecase.NewDraftsService(usecase.DraftsDeps{
		Store:         store,
		Generator:     generator,
		News:          newsSource,
		Allocator:     usecase.NewAllocator(committer, jitter, clock),
		Clock:         clock,
		SlotTimes:     cfg.Schedule.AllocateSlotTimes,
		LookaheadDays: cfg.Schedule.LookaheadDays,
		NGWords:       cfg.AI.NGWords,
	})
	if err != nil {
		logrus.Fatalf("[GENERATE] %v", err)
	}

	postUsecase = usecase.NewPostService(store, publisher, engine, clock, cfg.Schedule.MaxRetries)
	trackingUsecase = usecase.NewTrackingService(store, store, cfg.Tracking, clock)
	healthUsecase = usecase.NewHealthService(store, schedulerUsecase, store, clock, cfg.Schedule.BreakerThreshold, cfg.Store.Remote != "none")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp drains pending notifications and closes external clients.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if notifyPool != nil {
		notifyPool.Stop()
	}
	if poolCancel != nil {
		poolCancel()
	}
	if vkClient != nil {
		vkClient.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
