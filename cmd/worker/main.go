package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aerodesk/flight-scheduling-backend/internal/booking"
	"github.com/aerodesk/flight-scheduling-backend/internal/config"
	"github.com/aerodesk/flight-scheduling-backend/internal/db"
	"github.com/aerodesk/flight-scheduling-backend/internal/events"
	"github.com/aerodesk/flight-scheduling-backend/internal/rule"
	"github.com/aerodesk/flight-scheduling-backend/internal/waitlist"
)

// The worker owns the two periodic jobs: expiring stale waitlist offers and
// draining the event outbox.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "worker.yaml"
	}
	cfg, err := config.LoadWorker(path)
	if err != nil {
		log.Fatalf("failed to load worker config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	outbox := events.NewPgxOutboxRepository(pool)
	publisher := events.NewKafkaPublisher(producer, outbox)
	retryer := events.NewRetryer(producer, outbox, cfg.OutboxBatch)

	// The sweep only releases held bookings, so the booking engine runs
	// without the availability engine, registries or distributed locks.
	ruleRepo := rule.NewPgxRepository(pool)
	ruleService := rule.NewService(ruleRepo, time.Minute)
	bookingRepo := booking.NewPgxRepository(pool)
	bookingService := booking.NewService(bookingRepo, ruleService, nil, nil, nil, publisher, nil, nil, 5*time.Second)

	waitlistRepo := waitlist.NewPgxRepository(pool)
	waitlistService := waitlist.NewService(waitlistRepo, bookingService, publisher, 0, false)

	sweep := time.NewTicker(cfg.SweepInterval)
	defer sweep.Stop()
	drain := time.NewTicker(cfg.OutboxInterval)
	defer drain.Stop()

	log.Printf("worker running (sweep %s, outbox %s)", cfg.SweepInterval, cfg.OutboxInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("worker exiting")
			return
		case <-sweep.C:
			count, err := waitlistService.ProcessExpiredOffers(ctx)
			if err != nil {
				log.Printf("offer expiry sweep failed: %v", err)
				continue
			}
			if count > 0 {
				log.Printf("expired %d stale offers", count)
			}
		case <-drain.C:
			if err := retryer.Run(ctx); err != nil {
				log.Printf("outbox drain failed: %v", err)
			}
		}
	}
}
