package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// GetRouter initialises a new http router and applies all routes
func GetRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	return applyRoutes(r, h)
}

func applyRoutes(r chi.Router, h *Handler) chi.Router {
	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.requireLogin)
		r.Post("/logout", h.logout)
		r.Post("/password", h.changePassword)
		r.Get("/tables", h.listTables)
		r.Route("/tables/{table}", func(r chi.Router) {
			r.Get("/schema", h.describe)
			r.Get("/records", h.listRecords)
			r.Post("/records", h.submitRecord)
			r.Put("/records/{index}", h.editRecord)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	})
}
