// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries all environment-driven settings for the engine.
type Config struct {
	// EventDBPath is the SQLite database holding the append-only event log.
	EventDBPath string `env:"EVENT_DB_PATH" envDefault:"data/events.db"`
	// ProjectionsDBPath is the SQLite database holding derived projections.
	ProjectionsDBPath string `env:"PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`

	// PersonalizationMode is the baseline ranking mode before any Lab
	// control-change events are applied (deterministic, shadow, bounded).
	PersonalizationMode string `env:"ATTENTION_PERSONALIZATION_MODE" envDefault:"deterministic"`
	// ShadowConfidenceThreshold is the baseline confidence gate for bounded
	// personalization.
	ShadowConfidenceThreshold float64 `env:"SHADOW_RANKER_CONFIDENCE_THRESHOLD" envDefault:"0.6"`
	// UrgentScoreThreshold is the urgency score at or above which reminder
	// notifications are considered.
	UrgentScoreThreshold float64 `env:"ATTENTION_URGENT_THRESHOLD" envDefault:"60"`

	// DailySummaryHour is the local hour for the daily attention digest.
	DailySummaryHour int `env:"DAILY_SUMMARY_HOUR" envDefault:"20"`
	// WeeklySummaryDay is the weekday (0=Monday) for the weekly digest.
	WeeklySummaryDay int `env:"WEEKLY_SUMMARY_DAY" envDefault:"0"`
	// WeeklySummaryHour is the local hour for the weekly digest.
	WeeklySummaryHour int `env:"WEEKLY_SUMMARY_HOUR" envDefault:"9"`
	// ReminderWindowStart is the first local hour reminders may be sent.
	ReminderWindowStart int `env:"REMINDER_WINDOW_START" envDefault:"8"`
	// ReminderWindowEnd is the last local hour reminders may be sent.
	ReminderWindowEnd int `env:"REMINDER_WINDOW_END" envDefault:"21"`
	// NotificationChannelID is the channel reminders are delivered to.
	NotificationChannelID string `env:"NOTIFICATION_CHANNEL_ID"`

	// OpenAIAPIKey enables the OpenAI-backed extractor when set; the
	// deterministic mock extractor is used otherwise.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	// OpenAIModel is the extraction model identifier.
	OpenAIModel string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
