package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-intent-chat-be/internal/bootstrap"
	"ai-intent-chat-be/internal/config"
	"ai-intent-chat-be/internal/server"
	"ai-intent-chat-be/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
	defer container.Close()

	// 2.5 Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Otel, container.Logger)
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 3. Start Background Services
	go container.WebSocketHub.Run(ctx)
	if container.UnclassifiedRelay != nil {
		if err := container.UnclassifiedRelay.Consume(ctx); err != nil {
			log.Printf("[WARN] Unclassified relay not started: %v", err)
		}
	}

	// 4. Run both listeners until a signal arrives
	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Run)
	g.Go(func() error {
		log.Printf("✅ Realtime server is running on ws://localhost:%s", cfg.App.RealtimePort)
		return container.RealtimeServer.ListenAndServe(gctx, ":"+cfg.App.RealtimePort)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := container.RealtimeServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] Realtime shutdown: %v", err)
		}
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Printf("[ERROR] %v", err)
	}
}
