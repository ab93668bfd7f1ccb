// Package server assembles the dashboard HTTP application shared by the
// standalone server and the serverless entry point.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	config "forecast-dashboard/configs"
	"forecast-dashboard/pkg/forecastapi"
	"forecast-dashboard/pkg/handlers"
	"forecast-dashboard/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// App is a fully wired dashboard.
type App struct {
	Router     *gin.Engine
	Client     *forecastapi.Client
	Registry   *services.ViewRegistry
	Monitoring *services.MonitoringService
}

// New builds the backend client, the view registry and the router from cfg.
// Views live on ctx; cancelling it abandons their outstanding fetches.
// clientOpts are applied after the configured timeout and observer.
func New(ctx context.Context, cfg *config.Config, clientOpts ...forecastapi.Option) (*App, error) {
	defaultQuery, err := cfg.DefaultQuery()
	if err != nil {
		return nil, fmt.Errorf("invalid default query: %w", err)
	}

	monitoringService := services.NewMonitoringService()
	opts := append([]forecastapi.Option{
		forecastapi.WithTimeout(cfg.BackendTimeout),
		forecastapi.WithObserver(monitoringService),
	}, clientOpts...)
	client := forecastapi.NewClient(cfg.ForecastAPIURL, opts...)
	registry := services.NewViewRegistry(ctx, client, services.ViewConfig{
		IdleTTL:         cfg.ViewIdleTTL,
		DefaultQuery:    defaultQuery,
		DefaultProvider: cfg.ChatProvider(),
	})

	r, err := NewRouter(cfg, client, registry, monitoringService)
	if err != nil {
		return nil, err
	}
	log.Printf("[server] backend %s, views idle out after %s", client.BaseURL(), cfg.ViewIdleTTL)
	return &App{Router: r, Client: client, Registry: registry, Monitoring: monitoringService}, nil
}

// authMiddleware checks X-API-KEY when an API key is configured.
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		providedKey := c.GetHeader("X-API-KEY")
		if providedKey != apiKey {
			log.Printf("⚠️ [auth] rejected %s %s: invalid API key", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// NewRouter registers the pages, the JSON view API and the health endpoints.
func NewRouter(cfg *config.Config, backend handlers.BackendChecker, registry *services.ViewRegistry, monitoringService *services.MonitoringService) (*gin.Engine, error) {
	tmpl, err := handlers.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	r := gin.Default()
	r.SetHTMLTemplate(tmpl)

	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	healthHandler := handlers.NewHealthHandler(backend, registry)
	pageHandler := handlers.NewPageHandler(registry)
	viewHandler := handlers.NewViewHandler(registry)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	r.GET("/health", healthHandler.HealthCheck)
	pageHandler.Register(r)

	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		v1.GET("/status", healthHandler.Status)
		viewHandler.Register(v1)

		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}
	return r, nil
}
