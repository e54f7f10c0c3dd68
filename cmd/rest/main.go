package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cancelflow-be/internal/bootstrap"
	"cancelflow-be/internal/config"
	"cancelflow-be/internal/server"
	"cancelflow-be/internal/tracer"
	"cancelflow-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.App.JwtSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	// Tracing is optional; a broken exporter must not keep the service down
	shutdownTracer, err := tracer.Init(context.Background(), cfg.Tracing, cfg.App.Environment)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}

	// 2. Initialize Database
	gormDB, err := database.Open(cfg.Database.Connection, database.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Bootstrap failed: %v", err)
	}
	sysLog := container.Logger

	// 4. Start Background Services
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go container.WebSocketHub.Run(ctx)
	container.Queue.Start(ctx)

	if container.ConsumerService != nil {
		go func() {
			if err := container.ConsumerService.Consume(ctx); err != nil {
				sysLog.Error("MAIN", "Intake consumer stopped", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	go pruneJobs(ctx, container, cfg.Queue.RetainCompleted)

	// 5. Run Server
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			sysLog.Error("MAIN", "HTTP server stopped", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	sysLog.Info("MAIN", "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sysLog.Warn("MAIN", "HTTP shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		sysLog.Warn("MAIN", "Background shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		sysLog.Warn("MAIN", "Tracer shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

// pruneJobs removes settled jobs older than retain once an hour.
func pruneJobs(ctx context.Context, c *bootstrap.Container, retain time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Queue.Prune(ctx, retain)
			if err != nil {
				c.Logger.Warn("MAIN", "Job prune failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if n > 0 {
				c.Logger.Info("MAIN", "Pruned settled jobs", map[string]interface{}{"count": n})
			}
		}
	}
}
