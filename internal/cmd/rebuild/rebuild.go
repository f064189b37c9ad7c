// Package rebuild replays the journal into a fresh projection store.
package rebuild

import (
	"context"
	"flag"
	"log"

	"github.com/louisbranch/attend/internal/platform/config"
	"github.com/louisbranch/attend/internal/projection"
	"github.com/louisbranch/attend/internal/storage/sqlite"
)

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

// Run replays every journaled event into the projection store.
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

	applied, err := projection.Rebuild(ctx, events, projections)
	if err != nil {
		return err
	}
	log.Printf("rebuild: applied %d events", applied)
	return nil
}
