package notify

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateChannel)
	r.Get("/", h.ListChannels)
	r.Post("/{channelID}/verify", h.RequestVerification)
	r.Post("/{channelID}/confirm", h.ConfirmVerification)

	return r
}
