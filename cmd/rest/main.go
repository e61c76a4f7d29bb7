package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"exam-proctor-be/internal/bootstrap"
	"exam-proctor-be/internal/config"
	"exam-proctor-be/internal/server"
	"exam-proctor-be/internal/tracer"
	"exam-proctor-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(tracer.DefaultServiceName)
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Database (optional, monitoring logs fall back to memory)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment != "production")
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		if err := database.Migrate(db); err != nil {
			log.Panicf("Unable to migrate monitoring logs: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(ctx, gormDB, cfg)
	defer func() {
		if err := container.Close(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	// 4. Start Background Services
	if err := container.SupervisorFeed.Start(); err != nil {
		log.Printf("[WARN] Supervisor relay not started: %v", err)
	}
	go func() {
		log.Println("Background: Starting Alert Worker...")
		if err := container.AlertWorker.Consume(ctx); err != nil {
			log.Printf("Background Alert Worker Error: %v", err)
		}
	}()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
