package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"daw-agent-be/internal/bootstrap"
	"daw-agent-be/internal/config"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/internal/server"
	"daw-agent-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(cfg.Tracing, cfg.App.Environment, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg, bootstrap.Deps{Logger: sysLogger})
	if err != nil {
		log.Fatalf("Unable to bootstrap container: %v", err)
	}

	// 4. Start Background Services
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	if err := container.Start(startCtx); err != nil {
		cancelStart()
		log.Fatalf("Unable to start services: %v", err)
	}
	cancelStart()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 6. Wait for a signal, then drain
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := container.Stop(ctx); err != nil {
		log.Printf("Container shutdown error: %v", err)
	}
}
