package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Julienbatt/DringDring-sub000/config"
	"github.com/Julienbatt/DringDring-sub000/internal/api/handlers"
	"github.com/Julienbatt/DringDring-sub000/internal/metrics"
	"github.com/Julienbatt/DringDring-sub000/internal/services"
	"github.com/Julienbatt/DringDring-sub000/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server

	deliveryService    *services.DeliveryService
	freezeService      *services.FreezeService
	aggregationService *services.AggregationService
	documentService    *services.DocumentService
	metrics            *metrics.Metrics
	tracer             tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	delivery *services.DeliveryService,
	freeze *services.FreezeService,
	aggregation *services.AggregationService,
	documents *services.DocumentService,
	m *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:             cfg,
		deliveryService:    delivery,
		freezeService:      freeze,
		aggregationService: aggregation,
		documentService:    documents,
		metrics:            m,
		tracer:             tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  cfg.ServerTimeout,
		WriteTimeout: cfg.ServerTimeout,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	deliveryHandler := handlers.NewDeliveryHandler(s.deliveryService, s.tracer)
	deliveryHandler.RegisterRoutes(router)

	billingHandler := handlers.NewBillingHandler(s.freezeService, s.aggregationService, s.documentService, s.tracer)
	billingHandler.RegisterRoutes(router)

	metricsHandler := handlers.NewMetricsHandler(s.metrics, s.tracer)
	metricsHandler.RegisterRoutes(router)

	return router
}

// requestLogger logs each request with its latency and counts it.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		s.metrics.IncrementCounter("http_requests")
		s.metrics.RecordTimer("http_request_ms", latency.Milliseconds())

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Msg("Request handled")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
