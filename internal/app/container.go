package app

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodesk/flight-scheduling-backend/internal/api"
	"github.com/aerodesk/flight-scheduling-backend/internal/auth"
	"github.com/aerodesk/flight-scheduling-backend/internal/availability"
	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
	"github.com/aerodesk/flight-scheduling-backend/internal/cache"
	"github.com/aerodesk/flight-scheduling-backend/internal/config"
	"github.com/aerodesk/flight-scheduling-backend/internal/events"
	"github.com/aerodesk/flight-scheduling-backend/internal/location"
	"github.com/aerodesk/flight-scheduling-backend/internal/registry"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
	"github.com/aerodesk/flight-scheduling-backend/internal/waitlist"
)

// Container holds the initialized components that are needed externally.
type Container struct {
	Router     *gin.Engine
	JWTManager *auth.JWTManager
	Waitlist   waitlist.Service
	Producer   *events.Producer
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg *config.Config, pool *pgxpool.Pool) *Container {
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTokenTTL)

	// Shared infrastructure
	calendarCache := cache.NewCalendarCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cfg.CalendarCacheTTL, cfg.CalendarLockTTL)
	producer := events.NewProducer(cfg.KafkaBrokers, cfg.BookingEventsTopic)
	outbox := events.NewPgxOutboxRepository(pool)
	publisher := events.NewKafkaPublisher(producer, outbox)

	// External registries (contracts only; the engine never owns this data)
	aircraftRegistry := registry.NewHTTPAircraftRegistry(cfg.AircraftRegistryURL, cfg.RegistryTimeout)
	orgRegistry := registry.NewHTTPOrganizationRegistry(cfg.OrgRegistryURL, cfg.RegistryTimeout)
	userDirectory := registry.NewHTTPUserDirectory(cfg.UserDirectoryURL, cfg.RegistryTimeout)

	// Location Module
	locRepo := location.NewPgxRepository(pool)
	locService := location.NewService(locRepo)

	// Rule Engine
	ruleRepo := rule.NewPgxRepository(pool)
	ruleService := rule.NewService(ruleRepo, cfg.PolicyCacheTTL)

	// Booking repository doubles as the availability engine's view of
	// reserved block windows.
	bookingRepo := booking.NewPgxRepository(pool)

	// Availability Engine
	availRepo := availability.NewPgxRepository(pool)
	availService := availability.NewService(availRepo, locService, bookingRepo, calendarCache)

	// Booking Engine
	bookingService := booking.NewService(bookingRepo, ruleService, availService,
		aircraftRegistry, orgRegistry, publisher, calendarCache, calendarCache, cfg.CalendarLockWait)

	// Waitlist Engine
	waitlistRepo := waitlist.NewPgxRepository(pool)
	waitlistService := waitlist.NewService(waitlistRepo, bookingService, publisher,
		cfg.OfferTTL, cfg.WaitlistCascadeOnDecline)

	// Cancellations cascade into the waitlist synchronously.
	bookingService.SetCancellationHook(waitlistService.(booking.CancellationHook))

	router := api.NewRouter(api.Config{
		IsProduction:        cfg.IsProduction,
		ProdOrigins:         cfg.ProdOrigins,
		LocationService:     locService,
		RuleService:         ruleService,
		AvailabilityService: availService,
		BookingService:      bookingService,
		WaitlistService:     waitlistService,
		UserDirectory:       userDirectory,
		JWTManager:          jwtManager,
	})

	return &Container{
		Router:     router,
		JWTManager: jwtManager,
		Waitlist:   waitlistService,
		Producer:   producer,
	}
}
