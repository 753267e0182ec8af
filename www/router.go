package www

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"linehaul/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
	log      zerolog.Logger
}

// NewRouter builds the HTTP API. metricsHandler may be nil. The returned
// func stops the SSE hub.
func NewRouter(eng *engine.Engine, metricsHandler http.Handler, log zerolog.Logger) (http.Handler, func()) {
	hub := NewEventHub(log)
	hub.Start()
	hub.SetupEngineListeners(eng)

	cfg := eng.AppConfig()
	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(cfg.Web.SessionSecret),
		eventHub: hub,
		log:      log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.ensureDefaultAdmin(ctx, eng.DB())
	cancel()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	// Streams need a session but skip the API rate limit.
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/events", hub.SSEHandler)
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealthCheck)
		r.Post("/login", h.apiLogin)
		r.Post("/logout", h.apiLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			if n := cfg.Web.RateLimitPerMinute; n > 0 {
				r.Use(httprate.LimitByIP(n, time.Minute))
			}

			r.Get("/terminals", h.apiListTerminals)
			r.Post("/terminals", h.apiCreateTerminal)
			r.Get("/terminals/{id}", h.apiGetTerminal)
			r.Put("/terminals/{id}", h.apiUpdateTerminal)
			r.Delete("/terminals/{id}", h.apiDeleteTerminal)

			r.Get("/drivers", h.apiListDrivers)
			r.Post("/drivers", h.apiCreateDriver)
			r.Get("/drivers/{id}", h.apiGetDriver)
			r.Put("/drivers/{id}", h.apiUpdateDriver)
			r.Delete("/drivers/{id}", h.apiDeleteDriver)
			r.Get("/drivers/{id}/availability", h.apiDriverAvailability)
			r.Get("/drivers/{id}/time-off", h.apiListTimeOff)
			r.Post("/drivers/{id}/time-off", h.apiAddTimeOff)
			r.Delete("/drivers/{id}/time-off/{offId}", h.apiDeleteTimeOff)

			r.Get("/routes", h.apiListRoutes)
			r.Post("/routes", h.apiCreateRoute)
			r.Get("/routes/{id}", h.apiGetRoute)
			r.Put("/routes/{id}", h.apiUpdateRoute)
			r.Delete("/routes/{id}", h.apiDeleteRoute)
			r.Get("/routes/{id}/stops", h.apiListRouteStops)
			r.Post("/routes/{id}/stops", h.apiCreateRouteStop)
			r.Delete("/routes/{id}/stops/{stopId}", h.apiDeleteRouteStop)
			r.Get("/routes/{id}/substitutions", h.apiListSubstitutions)
			r.Post("/routes/{id}/substitutions", h.apiCreateSubstitution)
			r.Delete("/routes/{id}/substitutions/{subId}", h.apiDeleteSubstitution)

			r.Get("/dispatch", h.apiListDispatch)
			r.Post("/dispatch", h.apiCreateDispatch)
			r.Post("/dispatch/generate", h.apiGenerateDispatch)
			r.Get("/dispatch/{id}", h.apiGetDispatch)
			r.Patch("/dispatch/{id}", h.apiUpdateDispatch)
			r.Delete("/dispatch/{id}", h.apiDeleteDispatch)
			r.Post("/dispatch/{id}/status", h.apiChangeStatus)
			r.Post("/dispatch/{id}/assign", h.apiAssignDriver)
			r.Patch("/dispatch/{id}/stops/{stopId}", h.apiUpdateStop)

			r.Get("/board", h.apiBoard)
			r.Get("/audit", h.apiListAudit)
		})
	})

	return r, hub.Stop
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := h.engine.DB().PingContext(ctx) == nil
	status := "ok"
	code := http.StatusOK
	if !dbOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	h.jsonStatus(w, code, map[string]any{
		"status":      status,
		"database":    dbOK,
		"sse_clients": h.eventHub.ClientCount(),
	})
}
