// routes.go — регистрация маршрутов API в chi router.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/studyshare/internal/api/middleware"
	"github.com/bigkaa/studyshare/internal/domain/model"
)

// HandlerFromMux регистрирует все маршруты APIHandler в router.
// authenticate — JWT middleware для защищённых маршрутов.
func HandlerFromMux(h *APIHandler, r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api", func(r chi.Router) {
		// Публичные маршруты
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)

		r.Get("/files", h.ListFiles)
		r.Get("/files/{id}", h.GetFile)
		r.Get("/files/{id}/download", h.DownloadFile)
		r.Head("/files/{id}/download", h.DownloadFile)
		r.Get("/files/share/{token}/download", h.DownloadShared)
		r.Head("/files/share/{token}/download", h.DownloadShared)

		// Требуется Bearer token
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/auth/me", h.Me)
			r.Post("/files/upload", h.UploadFile)
			r.Post("/files/{id}/share", h.ShareFile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))

				r.Get("/users", h.AdminListUsers)
				r.Get("/files", h.AdminListFiles)
				r.Delete("/files/{id}", h.AdminDeleteFile)
				r.Post("/reconcile", h.AdminReconcile)
			})
		})
	})
}
