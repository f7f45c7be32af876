// Package router wires middleware and handlers into the HTTP route table.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aanand-mishra/courses-api/internal/config"
	"github.com/aanand-mishra/courses-api/internal/http/handlers/course"
	"github.com/aanand-mishra/courses-api/internal/http/middleware"
	"github.com/aanand-mishra/courses-api/internal/utils/response"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Users    middleware.UserGetter
	Courses  course.Service
	Registry *prometheus.Registry
}

// New builds the route table:
//
//	GET    /health
//	GET    /metrics
//	GET    /courses                       list (role-filtered)
//	POST   /courses                       create (Admin)
//	GET    /courses/{course_id}           retrieve
//	PUT    /courses/{course_id}           replace (Admin)
//	PATCH  /courses/{course_id}           partial update (Admin)
//	DELETE /courses/{course_id}           delete (Admin)
//	GET    /courses/{course_id}/students  roster
//	PUT    /courses/{course_id}/students  replace roster
//	DELETE /courses/{course_id}/students  remove from roster
func New(d Deps) http.Handler {
	metrics := middleware.NewMetrics(d.Registry)

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(metrics.Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_ = response.WriteJSON(w, http.StatusOK, map[string]string{"status": response.StatusOK})
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	sizes := course.PageSizes{
		Default: d.Config.Pagination.DefaultPageSize,
		Max:     d.Config.Pagination.MaxPageSize,
	}

	r.Route("/courses", func(r chi.Router) {
		r.Use(middleware.Authenticate(d.Users, d.Config.Auth.JWTSecret, d.Config.Auth.JWTIssuer))

		r.Get("/", course.List(d.Courses, sizes))
		r.Post("/", course.Create(d.Courses))

		r.Route("/{course_id}", func(r chi.Router) {
			r.Get("/", course.Get(d.Courses))
			r.Put("/", course.Update(d.Courses))
			r.Patch("/", course.Patch(d.Courses))
			r.Delete("/", course.Delete(d.Courses))

			r.Get("/students", course.Roster(d.Courses))
			r.Put("/students", course.ReplaceRoster(d.Courses))
			r.Delete("/students", course.RemoveFromRoster(d.Courses))
		})
	})

	return r
}
