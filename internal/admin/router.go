package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/authava/authgate/internal/store"
)

// Reloader is invoked after any mutating admin operation succeeds, so the
// decision pipeline's rule table snapshot picks up the change without the
// store ever holding a reference back to the pipeline (§9).
type Reloader func()

// NewRouter assembles the administrative HTTP surface (A5) over mutable.
// Mounting this router at all is conditional on config.AdminMounted — the
// caller (cmd/main.go) only calls NewRouter when that holds.
func NewRouter(guard *Guard, mutable store.Mutable, reload Reloader) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &handlers{mutable: mutable, reload: reload}

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)
		r.Get("/health", h.health)
		r.Get("/routes", h.list)
		r.Post("/routes", h.create)
		r.Get("/routes/{id}", h.get)
		r.Put("/routes/{id}", h.update)
		r.Delete("/routes/{id}", h.delete)
	})

	return r
}

// NotMountedHandler serves 403 for every admin route when the backend is
// not mutable, per §4.7.
func NotMountedHandler() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusForbidden, "admin surface requires a mutable (postgres) rule store")
	})
	return r
}
