package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/parking-booking-backend/internal/api"
	"github.com/nekogravitycat/parking-booking-backend/internal/auth"
	"github.com/nekogravitycat/parking-booking-backend/internal/booking"
	"github.com/nekogravitycat/parking-booking-backend/internal/cache"
	"github.com/nekogravitycat/parking-booking-backend/internal/events"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
	"github.com/nekogravitycat/parking-booking-backend/internal/user"
)

// Config holds the dependencies and settings required to start the
// application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	DBPool       *pgxpool.Pool
	Logger       zerolog.Logger

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	// Optional: nil disables availability caching.
	RedisClient          *redis.Client
	AvailabilityCacheTTL time.Duration

	// Optional: empty disables event publishing.
	KafkaBrokers []string
	KafkaTopic   string

	CancellationWindow time.Duration
	LockWait           time.Duration
	LockRetries        int
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router         *gin.Engine
	JWTManager     *auth.JWTManager
	BookingService booking.Service
	Publisher      events.Publisher
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	passwordHasher := auth.NewBcryptPasswordHasherWithCost(cfg.BcryptCost)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// User module
	userRepo := user.NewPgxRepository(cfg.DBPool)
	userService := user.NewService(userRepo, passwordHasher, cfg.Logger)

	// Parking module
	var availabilityCache parking.AvailabilityCache = cache.NopAvailability{}
	if cfg.RedisClient != nil {
		availabilityCache = cache.NewRedisAvailability(cfg.RedisClient, cfg.AvailabilityCacheTTL, cfg.Logger)
	}
	parkingRepo := parking.NewPgxRepository(cfg.DBPool)
	parkingService := parking.NewService(parkingRepo, availabilityCache, cfg.Logger)

	// Booking module
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	bookingRepo := booking.NewPgxRepository(cfg.DBPool)
	bookingService := booking.NewService(
		bookingRepo,
		parkingService,
		booking.NewLocker(),
		publisher,
		cfg.Logger,
		booking.Config{
			CancellationWindow: cfg.CancellationWindow,
			LockWait:           cfg.LockWait,
			LockRetries:        cfg.LockRetries,
		},
	)

	router := api.NewRouter(api.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		UserService:    userService,
		ParkingService: parkingService,
		BookingService: bookingService,
		JWTManager:     jwtManager,
	})

	return &Container{
		Router:         router,
		JWTManager:     jwtManager,
		BookingService: bookingService,
		Publisher:      publisher,
	}
}
