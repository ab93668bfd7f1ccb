// Package handler is the serverless entry point. The platform invokes Handler
// per request; the application is built once per warm instance.
package handler

import (
	"context"
	"log"
	"net/http"
	"sync"

	config "forecast-dashboard/configs"
	"forecast-dashboard/internal/server"
)

var (
	app     *server.App
	initErr error
	once    sync.Once
)

// setupApp builds the application on first use. Environment variables come
// from the platform, so no .env file is read here.
func setupApp() (*server.App, error) {
	once.Do(func() {
		cfg := config.LoadConfig()
		app, initErr = server.New(context.Background(), cfg)
		if initErr != nil {
			log.Printf("❌ [setupApp] %v", initErr)
			return
		}
		log.Printf("🟢 [setupApp] application ready")
	})
	return app, initErr
}

// Handler serves one request. Idle views are swept on every invocation since
// a frozen instance runs no background work.
func Handler(w http.ResponseWriter, r *http.Request) {
	a, err := setupApp()
	if err != nil {
		http.Error(w, "service misconfigured", http.StatusInternalServerError)
		return
	}
	a.Registry.Sweep()
	a.Router.ServeHTTP(w, r)
}
