package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/api"
	"github.com/Julienbatt/DringDring-sub000/internal/cache"
	"github.com/Julienbatt/DringDring-sub000/internal/database"
	"github.com/Julienbatt/DringDring-sub000/internal/messaging"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/search"
	"github.com/Julienbatt/DringDring-sub000/internal/services"
	"github.com/Julienbatt/DringDring-sub000/internal/storage"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server handling deliveries, period freezes and billing documents`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	// Initialize blob store
	blobStore, err := storage.NewMinioStore(cfg.Blob)
	if err != nil {
		return err
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize event publisher
	publisher, err := messaging.NewServiceBusPublisher(cfg.ServiceBus)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without events")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize services
	deliveryService := services.NewDeliveryService(db, publisher, metricsCollector, tracer)
	freezeService := services.NewFreezeService(db, cfg, redisCache, blobStore, publisher, metricsCollector, tracer)
	aggregationService := services.NewAggregationService(db, cfg, redisCache, publisher, metricsCollector, tracer)
	documentService := services.NewDocumentService(db, cfg, blobStore, elasticClient, publisher, metricsCollector, tracer)

	// Initialize and start the server
	server := api.NewServer(cfg, deliveryService, freezeService, aggregationService, documentService, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
