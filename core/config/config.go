package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Paths    PathsConfig
	Database DatabaseConfig
	Store    StoreConfig
	Sheets   SheetsConfig
	Schedule ScheduleConfig
	AI       AIConfig
	X        XConfig
	Notify   NotifyConfig
	News     NewsConfig
	Tracking TrackingConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	RunMode            string // "local" runs the in-process cron, "server" expects an external trigger
	BasePath           string
	BaseUrl            string
	TrustedProxies     []string
	CorsAllowedOrigins []string
	AdminPassword      string
	CronHeader         string // header set by the hosting platform's cron trigger
	InstanceID         string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type StoreConfig struct {
	LocalPath     string
	Remote        string // "sheets", "postgres" or "none"
	ProbeInterval time.Duration
}

type SheetsConfig struct {
	SpreadsheetID       string
	ServiceAccountEmail string
	PrivateKey          string
}

type ScheduleConfig struct {
	SlotTimes           []string // "HH:MM" nominal posting times for the daily fill
	AllocateSlotTimes   []string // slots used when scheduling generated batches
	LookaheadDays       int
	JitterMinutes       int
	SimilarityThreshold float64
	DedupeWindow        int
	DueBuffer           time.Duration
	StaleAfter          time.Duration
	BatchSize           int
	DailyCap            int
	MaxRetries          int
	BreakerThreshold    int
	EmergencyHours      []int
	DraftsPerDay        int
	FillDays            int
	LowStockThreshold   int
	LockTTL             time.Duration
	GenerateLockTTL     time.Duration
}

type AIConfig struct {
	Provider     string // "gemini", "openai" or "mock"
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	NGWords      []string
	MaxAttempts  int
}

type XConfig struct {
	APIBase     string
	AccessToken string
	DryRun      bool
}

type NotifyConfig struct {
	WebhookURL string
	Workers    int
	QueueSize  int
}

type NewsConfig struct {
	Enabled bool
	FeedURL string
	TTL     time.Duration
}

type TrackingConfig struct {
	LPBaseURL  string
	BizURL     string
	CookieDays int
}

// Global provides access to the loaded configuration globally.
var Global *Config

const defaultNewsFeed = "https://news.google.com/rss/search?q=%E7%A9%BA%E6%B0%97%E6%B8%85%E6%B5%84%E6%A9%9F+when:7d&hl=ja&gl=JP&ceid=JP:ja"

// LoadConfig loads configuration from a .env file (if present) and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	storages := getEnv("APP_BASE_DIR", "storages")

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		RunMode:            strings.ToLower(getEnv("RUN_MODE", "server")),
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		TrustedProxies:     getEnvList("APP_TRUSTED_PROXIES", nil),
		CorsAllowedOrigins: getEnvList("APP_CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		CronHeader:         getEnv("CRON_TRUSTED_HEADER", "x-vercel-cron"),
		InstanceID:         getEnv("INSTANCE_ID", ""),
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", "autopost"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "autopost:"),
	}

	storeCfg := StoreConfig{
		LocalPath:     getEnv("STORE_LOCAL_PATH", filepath.Join(storages, "autopost.db")),
		Remote:        strings.ToLower(getEnv("STORE_REMOTE", "none")),
		ProbeInterval: time.Duration(getEnvInt("STORE_PROBE_INTERVAL_SEC", 300)) * time.Second,
	}

	sheetsCfg := SheetsConfig{
		SpreadsheetID:       getEnv("GOOGLE_SHEET_ID", ""),
		ServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
		// Keys pasted into env files usually carry literal "\n".
		PrivateKey: strings.ReplaceAll(getEnv("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),
	}

	scheduleCfg := ScheduleConfig{
		SlotTimes:           getEnvList("SCHEDULE_SLOT_TIMES", []string{"08:00", "12:00", "20:00"}),
		AllocateSlotTimes:   getEnvList("SCHEDULE_ALLOCATE_SLOT_TIMES", []string{"08:00", "12:00"}),
		LookaheadDays:       getEnvInt("SCHEDULE_LOOKAHEAD_DAYS", 90),
		JitterMinutes:       getEnvInt("SCHEDULE_JITTER_MINUTES", 30),
		SimilarityThreshold: getEnvFloat("DEDUPE_SIMILARITY_THRESHOLD", 0.95),
		DedupeWindow:        getEnvInt("DEDUPE_WINDOW", 100),
		DueBuffer:           time.Duration(getEnvInt("SCHEDULE_DUE_BUFFER_MIN", 10)) * time.Minute,
		StaleAfter:          time.Duration(getEnvInt("SCHEDULE_STALE_HOURS", 24)) * time.Hour,
		BatchSize:           getEnvInt("SCHEDULE_BATCH_SIZE", 5),
		DailyCap:            getEnvInt("SCHEDULE_DAILY_CAP", 5),
		MaxRetries:          getEnvInt("SCHEDULE_MAX_RETRIES", 5),
		BreakerThreshold:    getEnvInt("SCHEDULE_BREAKER_THRESHOLD", 5),
		EmergencyHours:      getEnvIntList("SCHEDULE_EMERGENCY_HOURS", []int{8, 12, 20}),
		DraftsPerDay:        getEnvInt("SCHEDULE_DRAFTS_PER_DAY", 3),
		FillDays:            getEnvInt("SCHEDULE_FILL_DAYS", 3),
		LowStockThreshold:   getEnvInt("SCHEDULE_LOW_STOCK", 6),
		LockTTL:             time.Duration(getEnvInt("LOCK_TTL_SEC", 60)) * time.Second,
		GenerateLockTTL:     time.Duration(getEnvInt("LOCK_TTL_GENERATE_SEC", 300)) * time.Second,
	}

	aiCfg := AIConfig{
		Provider:     strings.ToLower(getEnv("AI_PROVIDER", "gemini")),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		NGWords:      getEnvList("AI_NG_WORDS", nil),
		MaxAttempts:  getEnvInt("AI_MAX_ATTEMPTS", 3),
	}

	cfg := &Config{
		App:      appCfg,
		Paths:    PathsConfig{Storages: storages},
		Database: dbCfg,
		Store:    storeCfg,
		Sheets:   sheetsCfg,
		Schedule: scheduleCfg,
		AI:       aiCfg,
		X: XConfig{
			APIBase:     getEnv("X_API_BASE", "https://api.x.com/2"),
			AccessToken: getEnv("X_ACCESS_TOKEN", ""),
			DryRun:      getEnvBool("X_DRY_RUN", false),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			Workers:    getEnvInt("NOTIFY_WORKERS", 2),
			QueueSize:  getEnvInt("NOTIFY_QUEUE_SIZE", 100),
		},
		News: NewsConfig{
			Enabled: getEnvBool("NEWS_ENABLED", true),
			FeedURL: getEnv("NEWS_FEED_URL", defaultNewsFeed),
			TTL:     time.Duration(getEnvInt("NEWS_TTL_MIN", 60)) * time.Minute,
		},
		Tracking: TrackingConfig{
			LPBaseURL:  getEnv("LP_BASE_URL", "https://example.com"),
			BizURL:     getEnv("LP_BIZ_URL", ""),
			CookieDays: getEnvInt("TRACK_COOKIE_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Global = cfg
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (c *Config) Validate() error {
	switch c.Store.Remote {
	case "none", "postgres":
	case "sheets":
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("STORE_REMOTE=sheets requires GOOGLE_SHEET_ID")
		}
	default:
		return fmt.Errorf("unsupported STORE_REMOTE %q", c.Store.Remote)
	}
	if c.App.RunMode != "local" && c.App.RunMode != "server" {
		return fmt.Errorf("unsupported RUN_MODE %q", c.App.RunMode)
	}
	if len(c.Schedule.SlotTimes) == 0 {
		return fmt.Errorf("SCHEDULE_SLOT_TIMES must not be empty")
	}
	return nil
}

// EnsureStorages creates the local storage directory.
func (c *Config) EnsureStorages() error {
	return os.MkdirAll(c.Paths.Storages, 0755)
}
