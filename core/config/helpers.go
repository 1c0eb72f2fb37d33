package config

import (
	"os"
	"strconv"
	"strings"
)

// GetAllSettings returns the non-secret settings exposed by the health endpoint.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":          Global.App.Version,
		"app_debug":            Global.App.Debug,
		"run_mode":             Global.App.RunMode,
		"store_remote":         Global.Store.Remote,
		"valkey_enabled":       Global.Database.ValkeyEnabled,
		"ai_provider":          Global.AI.Provider,
		"x_dry_run":            Global.X.DryRun,
		"schedule_slot_times":  Global.Schedule.SlotTimes,
		"schedule_daily_cap":   Global.Schedule.DailyCap,
		"schedule_jitter_min":  Global.Schedule.JitterMinutes,
		"dedupe_similarity":    Global.Schedule.SimilarityThreshold,
		"schedule_lookahead_d": Global.Schedule.LookaheadDays,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvIntList(key string, fallback []int) []int {
	parts := getEnvList(key, nil)
	if parts == nil {
		return fallback
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
