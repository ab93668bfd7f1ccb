package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "forecast-dashboard/configs"
	"forecast-dashboard/internal/server"
	"forecast-dashboard/internal/telemetry"
	"forecast-dashboard/pkg/forecastapi"

	"github.com/joho/godotenv"
)

const sweepInterval = time.Minute

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var clientOpts []forecastapi.Option
	tp, shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	} else {
		clientOpts = append(clientOpts, forecastapi.WithTracerProvider(tp))
	}

	app, err := server.New(ctx, cfg, clientOpts...)
	if err != nil {
		log.Fatalf("Failed to set up application: %v", err)
	}
	go app.Registry.Run(ctx, sweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting forecast dashboard on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
