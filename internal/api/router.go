// Package api exposes the portal engine over HTTP: JSON endpoints for the
// order lifecycle, document viewing, and login.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/clarity-dx/referral-portal/internal/auth"
	"github.com/clarity-dx/referral-portal/internal/docview"
	"github.com/clarity-dx/referral-portal/internal/portal"
)

// Server holds the handler dependencies.
type Server struct {
	portal   *portal.Service
	docs     *docview.Service
	identity auth.IdentityProvider
	issuer   *auth.TokenIssuer
	origins  []string
}

// NewServer builds the server.
func NewServer(p *portal.Service, docs *docview.Service, identity auth.IdentityProvider, issuer *auth.TokenIssuer) *Server {
	return &Server{portal: p, docs: docs, identity: identity, issuer: issuer}
}

// SetAllowedOrigins overrides the default CORS origin list.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.origins = origins
}

// Router assembles the HTTP routes. Everything under /api except login
// requires a session token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.issuer))

		r.Get("/api/orders", s.handleListOrders)
		r.Route("/api/orders/{orderID}", func(r chi.Router) {
			r.Get("/", s.handleGetOrder)
			r.Post("/process", s.handleProcessOrder)
			r.Post("/update", s.handleUpdateOrder)
			r.Post("/approve", s.handleApproveOrder)
			r.Get("/providers", s.handleFetchProviders)
			r.Post("/select-provider", s.handleSelectProvider)
			r.Post("/package-for-crm", s.handlePackageForCRM)
			r.Get("/audit", s.handleAuditTrail)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{filename}", s.handleGetDocument)
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
