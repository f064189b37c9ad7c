// Package attend wires the services and serves the MCP control surface.
package attend

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/louisbranch/attend/internal/attention"
	"github.com/louisbranch/attend/internal/domain/event"
	"github.com/louisbranch/attend/internal/extraction"
	"github.com/louisbranch/attend/internal/ingestion"
	"github.com/louisbranch/attend/internal/lab"
	"github.com/louisbranch/attend/internal/mcp/service"
	"github.com/louisbranch/attend/internal/notify"
	"github.com/louisbranch/attend/internal/platform/config"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage/sqlite"
	"github.com/louisbranch/attend/internal/task"
)

// notifierInterval is how often the scheduler checks for due notifications.
const notifierInterval = time.Minute

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	fs.StringVar(&cfg.EventDBPath, "events-db", cfg.EventDBPath, "path to the event journal database")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db", cfg.ProjectionsDBPath, "path to the projections database")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// logSender delivers notifications to the process log. It stands in when no
// chat channel is configured.
type logSender struct {
	logger *log.Logger
}

func (s logSender) Send(_ context.Context, channelID, text string) error {
	if channelID == "" {
		channelID = "local"
	}
	s.logger.Printf("notification to %s:\n%s", channelID, text)
	return nil
}

// Run opens the stores, wires the services, and serves MCP on stdio until the
// context ends. The notification scheduler runs alongside the server.
func Run(ctx context.Context, cfg config.Config) error {
	events, err := sqlite.Open(cfg.EventDBPath)
	if err != nil {
		return err
	}
	defer events.Close()

	projections, err := sqlite.Open(cfg.ProjectionsDBPath)
	if err != nil {
		return err
	}
	defer projections.Close()

	baseline := event.ControlState{
		Mode:                      cfg.PersonalizationMode,
		ShadowConfidenceThreshold: cfg.ShadowConfidenceThreshold,
	}

	tasks := task.NewService(events, projections, nil, nil)
	labService := lab.NewService(events, projections, baseline, nil, nil)
	attentionService := attention.NewService(events, projections, labService, nil, nil)

	var extractionClient extraction.Client
	if cfg.OpenAIAPIKey != "" {
		extractionClient = extraction.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		log.Printf("extraction: using OpenAI model %s", cfg.OpenAIModel)
	} else {
		log.Printf("extraction: no API key configured, using the mock extractor")
	}
	extractor := extraction.NewService(events, extractionClient, nil)
	ingestionService := ingestion.NewService(events, extractor,
		projection.Applier{Tasks: projections}, nil, nil)

	notifier := notify.NewNotifier(attentionService, events, projections, logSender{logger: log.Default()},
		notifyConfig(cfg), nil, nil)
	go notifier.Run(ctx, notifierInterval)

	return service.Run(ctx, service.Deps{
		Tasks:     tasks,
		Attention: attentionService,
		Lab:       labService,
		Ingestion: ingestionService,
		Events:    events,
	})
}

// notifyConfig maps runtime configuration onto the notifier schedule. The
// weekly day setting counts from Monday.
func notifyConfig(cfg config.Config) notify.Config {
	return notify.Config{
		ChannelID:           cfg.NotificationChannelID,
		DailyHour:           cfg.DailySummaryHour,
		WeeklyDay:           time.Weekday((cfg.WeeklySummaryDay + 1) % 7),
		WeeklyHour:          cfg.WeeklySummaryHour,
		UrgentThreshold:     cfg.UrgentScoreThreshold,
		ReminderWindowStart: cfg.ReminderWindowStart,
		ReminderWindowEnd:   cfg.ReminderWindowEnd,
	}
}
