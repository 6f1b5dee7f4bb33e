package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/pramudya/pawn-engine/internal/config"
	"github.com/pramudya/pawn-engine/internal/repository"
	"github.com/pramudya/pawn-engine/internal/service"
	"github.com/pramudya/pawn-engine/pkg/clock"
)

func main() {
	log.Println("Starting due-date sweep scheduler...")

	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	loanRepo := repository.NewLoanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	sysClock := clock.System()
	loanService := service.NewLoanService(loanRepo, paymentRepo, historyRepo, sysClock, cfg)
	sweeper := service.NewSweeper(loanRepo, loanService, redisClient, sysClock, cfg)

	// Initialize cron scheduler in the configured timezone
	c := cron.New(cron.WithSeconds(), cron.WithLocation(cfg.GetSchedulerLocation()))

	// Daily due-date sweep
	_, err = c.AddFunc(cfg.Scheduler.SweepCron, func() {
		log.Println("Running due-date sweep...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		result, err := sweeper.RunSweep(ctx)
		if err != nil {
			log.Printf("Due-date sweep failed: %v", err)
			return
		}

		log.Printf("Due-date sweep finished: checked=%d extended=%d overdue=%d failed=%d",
			result.Checked, result.Extended, result.MarkedOverdue, result.Failed)
	})
	if err != nil {
		log.Fatalf("Error scheduling due-date sweep: %v", err)
	}

	// Start the scheduler
	c.Start()
	log.Println("Scheduler started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down scheduler...")
	<-c.Stop().Done()
	log.Println("Scheduler stopped")
}
