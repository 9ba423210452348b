package target

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateTarget)
	r.Get("/", h.GetAllTargets)
	r.Get("/{targetID}", h.GetTarget)
	r.Patch("/{targetID}", h.SetEnabled)

	return r
}
