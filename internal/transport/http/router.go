package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/account-validity/internal/application/notifier"
	"github.com/account-validity/internal/application/renewal"
	"github.com/account-validity/internal/config"
	"github.com/account-validity/internal/domain"
	jwtinfra "github.com/account-validity/internal/infrastructure/jwt"
	s3infra "github.com/account-validity/internal/infrastructure/s3"
	"github.com/account-validity/internal/transport/http/handler"
	appmiddleware "github.com/account-validity/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// Deps holds the services and infrastructure the router wires into handlers.
// JWTProvider may be nil; every authenticated route then rejects, and the
// public link-renewal path keeps working.
type Deps struct {
	Renewal     renewal.Service
	Notifier    notifier.Service
	Notices     handler.NoticeLister
	Templates   *s3infra.Templates
	JWTProvider *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"authentication is not configured"}`, http.StatusUnauthorized)
			})
		}
	}

	// 5 requests/second, burst of 10 — the renew endpoints accept
	// unauthenticated tokens, so they get throttled per client IP.
	renewRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	validityH := handler.NewValidityHandler(deps.Renewal, deps.Notifier, deps.Templates, cfg.AppName)
	adminH := handler.NewAdminHandler(deps.Renewal, deps.Notices)
	internalH := handler.NewInternalHandler(deps.Renewal)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.With(renewRL.Limit).Get("/validity/renew", validityH.Renew)
		r.With(renewRL.Limit, appmiddleware.OptionalAuth(deps.JWTProvider)).
			Post("/validity/renew", validityH.RenewJSON)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Post("/validity/send_mail", validityH.SendMail)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Post("/admin/validity", adminH.SetValidity)
				r.Get("/admin/validity/{account_id}/expired", adminH.IsExpired)
				r.Get("/admin/validity/{account_id}/notices", adminH.ListNotices)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.RequireInternalSecret(cfg.InternalHookSecretHash))
			r.Post("/internal/on_registration", internalH.OnRegistration)
		})
	})

	return r
}
