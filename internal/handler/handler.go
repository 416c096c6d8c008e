// Package handler exposes the companion over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/tipfinity/internal/app"
	"github.com/ayush/tipfinity/internal/middleware"
)

// Handler holds the companion's HTTP handlers.
type Handler struct {
	app *app.App
}

func New(a *app.App) *Handler {
	return &Handler{app: a}
}

// Mount registers every route on r.
func (h *Handler) Mount(r chi.Router) {
	requireSession := middleware.RequireSession(h.app.Sessions)

	r.Get("/health", h.Health)

	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.Session)
		r.Delete("/", h.Logout)
	})

	r.Route("/signup", func(r chi.Router) {
		r.Get("/", h.SignupState)
		r.Post("/email", h.SubmitEmail)
		r.Put("/code/{index}", h.EnterDigit)
		r.Post("/code/{index}/backspace", h.Backspace)
		r.Post("/code", h.SubmitCode)
		r.Post("/skip", h.Skip)
		r.Post("/wallet/skip", h.SkipWallet)
		r.Post("/avatar", h.AttachAvatar)
		r.Post("/profile", h.SubmitProfile)
	})

	r.Route("/wallet", func(r chi.Router) {
		r.Get("/", h.WalletStatus)
		r.Post("/connect", h.ConnectWallet)
		r.Post("/disconnect", h.DisconnectWallet)
		r.With(requireSession).Get("/link", h.LinkState)
		r.With(requireSession).Post("/link", h.LinkWallet)
	})

	r.Route("/creators", func(r chi.Router) {
		r.Get("/", h.ListCreators)
		r.Post("/", h.CreateCreator)
		r.Get("/{id}", h.GetCreator)
		r.With(requireSession).Put("/{id}", h.UpdateCreator)
		r.With(requireSession).Delete("/{id}", h.DeleteCreator)
	})
	r.Get("/username/{username}/available", h.UsernameAvailable)

	r.Route("/tips", func(r chi.Router) {
		r.Post("/", h.CreateTip)
		r.Get("/recent", h.RecentTips)
		r.Get("/quote", h.Quote)
		r.Get("/creator/{id}", h.TipsForCreator)
		r.Get("/creator/{id}/total", h.TipTotal)
	})

	r.Post("/webhooks/tip", h.Webhook)
}

// Routes returns a router with every route mounted, for tests and embedding.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
