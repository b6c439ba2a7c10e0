package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nekogravitycat/parking-booking-backend/internal/booking"
	"github.com/nekogravitycat/parking-booking-backend/internal/cache"
	"github.com/nekogravitycat/parking-booking-backend/internal/config"
	"github.com/nekogravitycat/parking-booking-backend/internal/db"
	"github.com/nekogravitycat/parking-booking-backend/internal/events"
	"github.com/nekogravitycat/parking-booking-backend/internal/parking"
)

// The worker runs the two background duties of the system: it force-completes
// confirmed bookings whose end time has passed, and it consumes the booking
// event stream for audit logging.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer pool.Close()

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	parkingService := parking.NewService(parking.NewPgxRepository(pool), cache.NopAvailability{}, logger)
	bookingService := booking.NewService(
		booking.NewPgxRepository(pool),
		parkingService,
		booking.NewLocker(),
		publisher,
		logger,
		booking.Config{
			CancellationWindow: cfg.CancellationWindow,
			LockWait:           cfg.LockWait,
			LockRetries:        cfg.LockRetries,
		},
	)

	go runSweeper(ctx, bookingService, cfg.SweepInterval, logger)

	if len(cfg.KafkaBrokers) > 0 {
		runEventLog(ctx, cfg, logger)
	} else {
		logger.Info().Msg("kafka not configured, running sweeper only")
		<-ctx.Done()
	}

	logger.Info().Msg("worker exited")
}

// runSweeper periodically completes expired confirmed bookings.
func runSweeper(ctx context.Context, svc booking.Service, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.SweepCompletions(ctx, 100)
			if err != nil {
				logger.Error().Err(err).Msg("completion sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("completed", n).Msg("completion sweep finished")
			}
		}
	}
}

// runEventLog consumes the booking event stream and writes an audit log
// entry per event. Consumption blocks until the context is canceled.
func runEventLog(ctx context.Context, cfg *config.Config, logger zerolog.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaTopic,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("failed to read event")
			continue
		}

		var event events.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error().Err(err).Str("key", string(msg.Key)).Msg("malformed event payload")
			continue
		}

		logger.Info().
			Str("type", string(event.Type)).
			Str("booking_id", event.BookingID).
			Str("parking_id", event.ParkingID).
			Str("user_id", event.UserID).
			Float64("total_price", event.TotalPrice).
			Time("occurred_at", event.OccurredAt).
			Msg("booking event")
	}
}
