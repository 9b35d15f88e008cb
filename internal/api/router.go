package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/aerodesk/flight-scheduling-backend/internal/auth"
	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
	availabilityHttp "github.com/aerodesk/flight-scheduling-backend/internal/availability/http"
	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
	bookingHttp "github.com/aerodesk/flight-scheduling-backend/internal/booking/http"
	"github.com/aerodesk/flight-scheduling-backend/internal/location"
	locationHttp "github.com/aerodesk/flight-scheduling-backend/internal/location/http"
	"github.com/aerodesk/flight-scheduling-backend/internal/registry"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
	ruleHttp "github.com/aerodesk/flight-scheduling-backend/internal/rule/http"
	"github.com/aerodesk/flight-scheduling-backend/internal/waitlist"
	waitlistHttp "github.com/aerodesk/flight-scheduling-backend/internal/waitlist/http"
)

// Config holds the services and settings the router needs.
type Config struct {
	IsProduction bool
	ProdOrigins  string

	LocationService     location.Service
	RuleService         rule.Service
	AvailabilityService availability.Service
	BookingService      booking.Service
	WaitlistService     waitlist.Service

	UserDirectory registry.UserDirectory
	JWTManager    *auth.JWTManager
}

// NewRouter initializes the HTTP router engine.
// It assembles middleware (CORS, Logger, Auth, rate limiting) and registers
// routes for each module.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	corsConfig := cors.DefaultConfig()
	if cfg.IsProduction && cfg.ProdOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.ProdOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{
			"http://localhost:8081", // Swagger
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	// Booking traffic is bursty around the top of the hour; the bucket
	// absorbs a schedule-refresh burst without letting one client hammer
	// the conflict checker.
	r.Use(RateLimit(rate.Limit(20), 40))

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)
	// manageRulesMiddleware: Checks the rules management permission against
	// the external user directory.
	manageRulesMiddleware := RequirePermission(cfg.UserDirectory, "scheduling.rules.manage")

	// Initialize HTTP Handlers for each module (injecting Service dependencies).
	locationHandler := locationHttp.NewHandler(cfg.LocationService)
	ruleHandler := ruleHttp.NewHandler(cfg.RuleService)
	availabilityHandler := availabilityHttp.NewHandler(cfg.AvailabilityService)
	bookingHandler := bookingHttp.NewHandler(cfg.BookingService)
	waitlistHandler := waitlistHttp.NewHandler(cfg.WaitlistService)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		locationHttp.RegisterRoutes(v1, locationHandler, authMiddleware)
		ruleHttp.RegisterRoutes(v1, ruleHandler, authMiddleware, manageRulesMiddleware)
		availabilityHttp.RegisterRoutes(v1, availabilityHandler, authMiddleware)
		bookingHttp.RegisterRoutes(v1, bookingHandler, authMiddleware)
		waitlistHttp.RegisterRoutes(v1, waitlistHandler, authMiddleware)
	}

	return r
}
