package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roadsync/tracking-system/internal/api/handler"
	"github.com/roadsync/tracking-system/internal/api/middleware"
	"github.com/roadsync/tracking-system/internal/core/ports"
	"github.com/roadsync/tracking-system/internal/stream"
)

// RouterDeps carries the constructed collaborators the router wires into
// handlers. Construction happens in main so the router stays declarative.
type RouterDeps struct {
	Tracking      ports.TrackingService
	Incidents     ports.IncidentService
	Dispatcher    handler.ReportDispatcher
	Registry      *stream.Registry
	Mongo         *mongo.Database
	Redis         *redis.Client
	GatewaySecret string
	Log           zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps RouterDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddleware("tracking"))

	// --- Handlers ---
	trackingHandler := handler.NewTrackingHandler(deps.Tracking, deps.Dispatcher)
	incidentHandler := handler.NewIncidentHandler(deps.Incidents)
	streamHandler := handler.NewStreamHandler(deps.Tracking, deps.Registry, deps.Log)

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(deps.Mongo, deps.Redis)

	e.GET("/health", healthHandler.Liveness)            // liveness  – is the process alive?
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandler())

	// --- API routes (gateway token required) ---
	v1 := e.Group("/v1", middleware.Gateway(deps.GatewaySecret))

	v1.POST("/locations", trackingHandler.Report)
	v1.POST("/locations/batch", trackingHandler.ReportBatch)

	v1.GET("/orders/:order_id/location", trackingHandler.Current)
	v1.GET("/orders/:order_id/history", trackingHandler.History)
	v1.GET("/orders/:order_id/stream", streamHandler.Stream)
	v1.POST("/orders/:order_id/accept", trackingHandler.Accept)
	v1.POST("/orders/:order_id/pickup", trackingHandler.Pickup)
	v1.POST("/orders/:order_id/delivery", trackingHandler.Delivery)
	v1.POST("/orders/:order_id/cancel", trackingHandler.Cancel)

	v1.GET("/drivers/nearest", trackingHandler.NearestDrivers)
	v1.GET("/drivers/:driver_id/statistics", trackingHandler.Statistics)
	v1.GET("/deliveries/nearby", trackingHandler.NearbyDeliveries)

	v1.POST("/incidents", incidentHandler.Report)
	v1.GET("/incidents", incidentHandler.List)
	v1.GET("/incidents/:incident_id", incidentHandler.Get)
	v1.DELETE("/incidents/:incident_id", incidentHandler.Deactivate)

	return e
}
