package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/villetakanen/pelilauta-17-sub000/internal/api/recovery"
	"github.com/villetakanen/pelilauta-17-sub000/internal/authz"
	"github.com/villetakanen/pelilauta-17-sub000/internal/services"
)

// RouterDeps carries what the router needs. Inbox, IsHealthy and Gatherer are optional.
type RouterDeps struct {
	Threads   *services.ThreadService
	Gate      *authz.Gate
	Inbox     Inbox
	IsHealthy func() bool
	Gatherer  prometheus.Gatherer
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware)
	router.Use(metricsMiddleware)

	healthHandler := NewHealthHandler(d.IsHealthy)
	threadHandler := NewThreadHandler(d.Threads, d.Gate, d.Inbox)

	// Health and metrics
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods(http.MethodGet)
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Threads
	router.HandleFunc("/threads", threadHandler.CreateThread).Methods(http.MethodPost)
	router.HandleFunc("/threads/{key}", threadHandler.GetThread).Methods(http.MethodGet)
	router.HandleFunc("/threads/{key}", threadHandler.UpdateThread).Methods(http.MethodPut)
	router.HandleFunc("/threads/{key}", threadHandler.DeleteThread).Methods(http.MethodDelete)

	// Labels (admin only)
	router.HandleFunc("/threads/{key}/labels", threadHandler.AddLabels).Methods(http.MethodPost)
	router.HandleFunc("/threads/{key}/labels", threadHandler.RemoveLabels).Methods(http.MethodDelete)

	// Replies
	router.HandleFunc("/threads/{key}/replies", threadHandler.CreateReply).Methods(http.MethodPost)
	router.HandleFunc("/threads/{key}/replies/{replyKey}", threadHandler.GetReply).Methods(http.MethodGet)
	router.HandleFunc("/threads/{key}/replies/{replyKey}", threadHandler.UpdateReply).Methods(http.MethodPut)

	// Tag pages and inbox
	router.HandleFunc("/tags/{tag}", threadHandler.ListTag).Methods(http.MethodGet)
	router.HandleFunc("/notifications", threadHandler.ListNotifications).Methods(http.MethodGet)

	return router
}
