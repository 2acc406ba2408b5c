package handlers

import (
	"card-arena/internal/middleware"

	"github.com/gorilla/mux"
)

// Routes bundles what NewRouter mounts.
type Routes struct {
	WebSocket    *WebSocketHandler
	API          *APIHandler
	Auth         *middleware.AuthMiddleware
	Limiter      *middleware.RateLimiter
	ServiceToken string
}

func NewRouter(rt Routes) *mux.Router {
	router := mux.NewRouter()

	// WebSocket: rate limited per IP, then authenticated
	ws := router.PathPrefix("/ws").Subrouter()
	ws.Use(rt.Limiter.IPRateLimitMiddleware(middleware.WebSocketUpgradeLimit))
	ws.Use(rt.Auth.RequireAuth)
	ws.HandleFunc("", rt.WebSocket.HandleWebSocket)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/presence/{userId}", rt.API.GetPresence).Methods("GET")

	authAPI := api.PathPrefix("/matchmaking").Subrouter()
	authAPI.Use(rt.Auth.RequireAuth)
	authAPI.HandleFunc("/status", rt.API.GetMatchmakingStatus).Methods("GET")

	serviceAPI := api.PathPrefix("/notifications").Subrouter()
	serviceAPI.Use(rt.Limiter.IPRateLimitMiddleware(middleware.NotificationLimit))
	serviceAPI.Use(middleware.RequireServiceToken(rt.ServiceToken))
	serviceAPI.HandleFunc("", rt.API.PostNotification).Methods("POST")

	router.HandleFunc("/health", rt.API.Health).Methods("GET")
	return router
}
