package httpserver

import (
	"net/http"

	"stockpledge/internal/accessgate"
	"stockpledge/internal/admin"
	"stockpledge/internal/audit"
	"stockpledge/internal/auth"
	"stockpledge/internal/execution"
	"stockpledge/internal/health"
	"stockpledge/internal/pledges"
	"stockpledge/internal/sessions"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	AuthHandler      *auth.Handler
	AccessHandler    *accessgate.Handler
	SessionsHandler  *sessions.Handler
	PledgeHandler    *pledges.Handler
	ExecutionHandler *execution.Handler
	AuditHandler     *audit.Handler
	AdminHandler     *admin.Handler
	HealthHandler    *health.Handler
	AuthService      *auth.Service
	AdminJWTSecret   string
	WSHandler        http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS middleware for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// Security Middleware
	r.Use(SecurityHeaders)
	r.Use(RateLimitMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/health", d.HealthHandler.Get)
	r.Get("/health/live", d.HealthHandler.Live)
	r.Get("/health/ready", d.HealthHandler.Ready)
	r.Get("/health/full", d.HealthHandler.Full)
	r.Get("/metrics", MetricsHandler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.AuthHandler.Register)
			r.Post("/login", d.AuthHandler.Login)
		})
		r.Get("/sessions/ws", d.WSHandler.ServeHTTP)
		r.Get("/sessions", d.SessionsHandler.List)
		r.Get("/sessions/{sessionID}", d.SessionsHandler.Get)
		r.Get("/sessions/{sessionID}/stats", d.SessionsHandler.Stats)
		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthService))
			r.Get("/me", authed(d.AuthHandler.Me))
			r.Post("/access-requests", authed(d.AccessHandler.Submit))
			r.Get("/access-requests", authed(d.AccessHandler.ListMine))
			r.Post("/sessions/{sessionID}/pledges", authed(d.PledgeHandler.Submit))
			r.Get("/pledges", authed(d.PledgeHandler.ListMine))
			r.Get("/pledges/{pledgeID}", authed(d.PledgeHandler.Get))
			r.Post("/pledges/{pledgeID}/cancel", authed(d.PledgeHandler.Cancel))
			r.Get("/executions", authed(d.ExecutionHandler.ListMine))
			r.Get("/pledges/{pledgeID}/executions", d.ExecutionHandler.Executions)
			r.Get("/pledges/{pledgeID}/position", d.ExecutionHandler.Position)
		})
		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			// Public login endpoint
			r.Post("/login", d.AdminHandler.Login)

			// Protected routes
			r.Group(func(r chi.Router) {
				r.Use(admin.AdminAuthMiddleware(d.AdminJWTSecret))
				r.Get("/me", d.AdminHandler.Me)
				// Demat access review
				r.With(admin.RequireRight("access")).Get("/access-requests", d.AccessHandler.AdminListPending)
				r.With(admin.RequireRight("access")).Post("/access-requests/{requestID}/review", admined(d.AccessHandler.AdminReview))
				// Session lifecycle
				r.With(admin.RequireRight("sessions")).Post("/sessions", admined(d.SessionsHandler.AdminCreate))
				r.With(admin.RequireRight("sessions")).Put("/sessions/{sessionID}", admined(d.SessionsHandler.AdminUpdate))
				r.With(admin.RequireRight("sessions")).Post("/sessions/{sessionID}/status", admined(d.SessionsHandler.AdminTransition))
				r.With(admin.RequireRight("sessions")).Delete("/sessions/{sessionID}", admined(d.SessionsHandler.AdminCancel))
				r.With(admin.RequireRight("sessions")).Get("/sessions/{sessionID}/pledges", d.PledgeHandler.AdminListBySession)
				// Execution
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/execute-buy", admined(d.ExecutionHandler.ExecuteBuy))
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/execute-now", admined(d.ExecutionHandler.ExecuteNow))
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/pause", admined(d.ExecutionHandler.Pause))
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/resume", admined(d.ExecutionHandler.Resume))
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/target", admined(d.ExecutionHandler.ChangeTarget))
				r.With(admin.RequireRight("executions")).Post("/pledges/{pledgeID}/cancel-auto-sell", admined(d.ExecutionHandler.CancelAutoSell))
				r.With(admin.RequireRight("executions")).Post("/sessions/{sessionID}/execute", admined(d.ExecutionHandler.ExecuteSession))
				// Audit ledger
				r.With(admin.RequireRight("audit")).Get("/audit", admined(d.AuditHandler.AdminList))
				r.With(admin.RequireRight("audit")).Get("/audit/export", admined(d.AuditHandler.AdminExport))
				r.With(admin.RequireRight("audit")).Get("/audit/verify", admined(d.AuditHandler.AdminVerify))
			})
		})
	})
	return r
}
