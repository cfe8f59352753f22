// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/heliosfit/gymdesk/internal/api"
	"github.com/heliosfit/gymdesk/internal/api/attendance"
	"github.com/heliosfit/gymdesk/internal/api/auth"
	"github.com/heliosfit/gymdesk/internal/api/dashboard"
	"github.com/heliosfit/gymdesk/internal/api/members"
	"github.com/heliosfit/gymdesk/internal/api/payments"
	"github.com/heliosfit/gymdesk/internal/api/settings"
	"github.com/heliosfit/gymdesk/internal/config"
	"github.com/heliosfit/gymdesk/internal/db"
	"github.com/heliosfit/gymdesk/internal/ratelimit"
)

func newServer(cfg *config.Config, database *db.DB) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithAuth,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	kioskLimiter := ratelimit.New(ratelimit.DefaultConfig())

	auth.Init(cfg, database.Queries)
	members.Init(database.Queries)
	payments.Init(database)
	attendance.Init(cfg, database.Queries, kioskLimiter)
	settings.Init(database.Queries)
	dashboard.Init(database.Queries)

	registerRoutes(router)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// admin wraps a handler so only authenticated admins reach it.
func admin(h http.HandlerFunc) http.Handler {
	return api.WithAdminAuth(h)
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth
	mux.HandleFunc("POST /api/v1/auth/setup", auth.HandleSetup)
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", auth.HandleMe)

	// Members. The lookup endpoint is public for the kiosk.
	mux.Handle("GET /api/v1/members", admin(members.HandleList))
	mux.Handle("POST /api/v1/members", admin(members.HandleCreate))
	mux.HandleFunc("GET /api/v1/members/lookup", members.HandleLookup)
	mux.Handle("GET /api/v1/members/{id}", admin(members.HandleGet))
	mux.Handle("PUT /api/v1/members/{id}", admin(members.HandleUpdate))
	mux.Handle("DELETE /api/v1/members/{id}", admin(members.HandleDelete))

	// Payments
	mux.Handle("GET /api/v1/payments", admin(payments.HandleList))
	mux.Handle("POST /api/v1/payments", admin(payments.HandleCreate))
	mux.Handle("POST /api/v1/payments/balance", admin(payments.HandleBalance))
	mux.Handle("DELETE /api/v1/payments/{id}", admin(payments.HandleDelete))

	// Attendance. The kiosk mark endpoint is public and rate limited.
	mux.HandleFunc("POST /api/v1/attendance/mark", attendance.HandleMark)
	mux.Handle("GET /api/v1/attendance", admin(attendance.HandleList))
	mux.Handle("GET /api/v1/attendance/current", admin(attendance.HandleCurrent))

	// Gym configuration. Read is public for the kiosk, write is admin only.
	mux.HandleFunc("GET /api/v1/config", settings.HandleGet)
	mux.Handle("PUT /api/v1/config", admin(settings.HandlePut))

	// Dashboard
	mux.Handle("GET /api/v1/dashboard/stats", admin(dashboard.HandleStats))
}
