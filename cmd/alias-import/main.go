// Command alias-import seeds a merchant's product series, sequence tiers and
// SKU aliases from a YAML file. Re-running it with the same file is a no-op
// apart from re-pointing aliases that moved to another tier.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/SubscriberSync/portal-sub000/internal/aliases"
	"github.com/SubscriberSync/portal-sub000/internal/events"
	"github.com/SubscriberSync/portal-sub000/platform/config"
	"github.com/SubscriberSync/portal-sub000/platform/db"
	"github.com/SubscriberSync/portal-sub000/platform/logger"
	"github.com/SubscriberSync/portal-sub000/platform/validator"

	"github.com/google/uuid"
)

func main() {
	merchantFlag := flag.String("merchant", "", "merchant ID the aliases belong to")
	fileFlag := flag.String("file", "aliases.yaml", "YAML file describing series, tiers and aliases")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	merchantID, err := uuid.Parse(*merchantFlag)
	if err != nil {
		log.Error("invalid merchant ID", "merchant", *merchantFlag, "error", err)
		os.Exit(2)
	}

	raw, err := os.ReadFile(*fileFlag)
	if err != nil {
		log.Error("failed to read alias file", "file", *fileFlag, "error", err)
		os.Exit(1)
	}
	catalog, err := parseCatalog(raw)
	if err != nil {
		log.Error("invalid alias file", "file", *fileFlag, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	module := aliases.NewModule(pool, eventBus, validator.New(), log)
	stats, err := seed(ctx, module.Service(), merchantID, catalog)
	if err != nil {
		log.Error("alias import failed", "error", err)
		os.Exit(1)
	}

	log.Info("alias import complete",
		"merchantId", merchantID,
		"seriesCreated", stats.SeriesCreated,
		"tiersCreated", stats.TiersCreated,
		"aliases", stats.Aliases)
	fmt.Printf("series created: %d, tiers created: %d, aliases upserted: %d\n",
		stats.SeriesCreated, stats.TiersCreated, stats.Aliases)
}
