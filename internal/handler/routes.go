package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router builds the chi router
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		h.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	if h.events != nil {
		r.Method(http.MethodGet, "/events", h.events)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(middleware.SetHeader("Cache-Control", "no-store"))

		r.Get("/providers", h.ListProviders)
		r.Post("/providers/{id}/finalize", h.Finalize)

		r.Route("/sync-groups", func(r chi.Router) {
			r.Get("/", h.ListSyncGroups)
			r.Post("/", h.CreateSyncGroup)
			r.Get("/{id}", h.GetSyncGroup)
			r.Delete("/{id}", h.DeleteSyncGroup)
			r.Post("/{id}/data-sources", h.CreateDataSource)
		})
		r.Route("/data-sources", func(r chi.Router) {
			r.Get("/{id}", h.GetDataSource)
			r.Put("/{id}", h.UpdateDataSource)
			r.Delete("/{id}", h.DeleteDataSource)
		})

		r.Post("/runs", h.StartRun)
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
			r.Delete("/{id}", h.KillJob)
			r.Get("/{id}/report", h.JobReport)
		})

		r.Get("/activity", h.ListActivity)
		r.Get("/variables/{name}", h.GetVariable)
		r.Put("/variables/{name}", h.SetVariable)

		if h.prober != nil {
			r.Post("/probe", h.Probe)
		}
		if h.seed != nil {
			r.Post("/seed/reload", h.ReloadSeed)
		}
	})

	return r
}
