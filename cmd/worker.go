package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/cache"
	"github.com/Julienbatt/DringDring-sub000/internal/database"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/models"
	"github.com/Julienbatt/DringDring-sub000/internal/services"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that re-aggregates the previous month's draft runs nightly`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database
	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize event publisher
	publisher, err := messaging.NewServiceBusPublisher(cfg.ServiceBus)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without events")
	}

	metricsCollector := metrics.NewMetrics()
	aggregationService := services.NewAggregationService(db, cfg, redisCache, publisher, metricsCollector, tracer)

	// Re-aggregate every draft run of the previous month nightly so
	// late deliveries and tariff corrections show up without manual
	// intervention.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 30, 0))),
		gocron.NewTask(func() {
			if err := reaggregateDraftRuns(ctx, db, aggregationService); err != nil {
				log.Error().Err(err).Msg("Nightly re-aggregation failed")
			}
		}),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	log.Info().Msg("Worker started")

	// Wait for termination signal
	<-ctx.Done()

	log.Info().Msg("Worker shutting down gracefully")
	return scheduler.Shutdown()
}

// reaggregateDraftRuns reruns every draft run of the previous month.
func reaggregateDraftRuns(ctx context.Context, db *gorm.DB, svc *services.AggregationService) error {
	lastMonth := models.MonthKey(time.Now().UTC().AddDate(0, -1, 0))

	var runs []models.BillingRun
	err := db.WithContext(ctx).
		Where("period_month = ? AND status = ?", lastMonth, models.BillingStatusDraft).
		Find(&runs).Error
	if err != nil {
		return errors.Wrap(err, "failed to list draft runs")
	}

	actor := services.Actor{Name: "worker"}
	for _, run := range runs {
		if _, err := svc.Aggregate(ctx, run.AdminRegionID, lastMonth, actor); err != nil {
			log.Error().Err(err).
				Str("region_id", run.AdminRegionID.String()).
				Str("month", lastMonth).
				Msg("Failed to re-aggregate run")
			continue
		}
		log.Info().
			Str("region_id", run.AdminRegionID.String()).
			Str("month", lastMonth).
			Msg("Run re-aggregated")
	}
	return nil
}
