package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox/registry"
	"github.com/angelmondragon/marketplace-backend/pkg/pubsub"
)

func main() {
	requeue := flag.String("requeue", "", "move a dead-lettered event id back to the outbox and exit")
	listDLQ := flag.Int("dlq", 0, "log the newest N dead letters and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	if *requeue != "" || *listDLQ > 0 {
		err := runDLQCommand(context.Background(), logg, outbox.NewDLQRepository(dbClient.DB()), *requeue, *listDLQ)
		_ = dbClient.Close()
		if err != nil {
			logg.Error(context.Background(), "dlq command failed", err)
			os.Exit(1)
		}
		return
	}

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		_ = dbClient.Close()
		os.Exit(1)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}

	relay, err := NewRelay(RelayParams{
		Outbox:    cfg.Outbox,
		Logger:    logg,
		DB:        dbClient,
		Broker:    pubsubClient,
		Events:    outbox.NewRepository(dbClient.DB()),
		DLQ:       outbox.NewDLQRepository(dbClient.DB()),
		Registry:  eventRegistry,
		Publisher: pubsubClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox relay", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"topics": eventRegistry.Topics(),
	})
	logg.Info(ctx, "starting outbox publisher")

	exitCode := 0
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		exitCode = 1
	}
	stop()

	pubsubClient.Stop()
	closeErr := multierr.Combine(pubsubClient.Close(), dbClient.Close())
	for _, err := range multierr.Errors(closeErr) {
		logg.Error(context.Background(), "error during shutdown", err)
		exitCode = 1
	}
	logg.Info(context.Background(), "outbox publisher shut down")
	os.Exit(exitCode)
}

func runDLQCommand(ctx context.Context, logg *logger.Logger, dlq *outbox.DLQRepository, requeue string, limit int) error {
	if requeue != "" {
		id, err := uuid.Parse(requeue)
		if err != nil {
			return fmt.Errorf("invalid -requeue id: %w", err)
		}
		if err := dlq.Requeue(ctx, id); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "outbox_id", id.String()), "event requeued")
		return nil
	}

	rows, err := dlq.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fields := map[string]any{
			"outbox_id":     row.EventID.String(),
			"event_type":    row.EventType,
			"aggregate_id":  row.AggregateID,
			"error_reason":  row.ErrorReason,
			"attempt_count": row.AttemptCount,
			"failed_at":     row.FailedAt,
		}
		if row.ErrorMessage != nil {
			fields["error"] = *row.ErrorMessage
		}
		logg.Info(logg.WithFields(ctx, fields), "dead letter")
	}
	return nil
}
