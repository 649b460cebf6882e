// handler.go — APIHandler собирает доменные обработчики в один объект
// и описывает маршруты Material Module.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/edustore/material-module/internal/api/middleware"
)

// ScopeMaterialsWrite — scope, требуемый для мутирующих операций.
const ScopeMaterialsWrite = "materials:write"

// APIHandler — единый обработчик всех endpoints Material Module.
type APIHandler struct {
	materials   *MaterialsHandler
	library     *LibraryHandler
	health      *HealthHandler
	metrics     http.Handler
	authEnabled bool
}

// NewAPIHandler создаёт единый handler для всех endpoints.
// При authEnabled мутирующие маршруты требуют scope materials:write.
func NewAPIHandler(
	materials *MaterialsHandler,
	library *LibraryHandler,
	health *HealthHandler,
	authEnabled bool,
) *APIHandler {
	return &APIHandler{
		materials:   materials,
		library:     library,
		health:      health,
		metrics:     promhttp.Handler(),
		authEnabled: authEnabled,
	}
}

// Routes регистрирует маршруты на переданном роутере.
func (h *APIHandler) Routes(router chi.Router) {
	router.Get("/health/live", h.health.HealthLive)
	router.Get("/health/ready", h.health.HealthReady)
	router.Method(http.MethodGet, "/metrics", h.metrics)

	router.Route("/api/v1", func(r chi.Router) {
		// Мутирующие операции — под scope materials:write
		r.Group(func(r chi.Router) {
			if h.authEnabled {
				r.Use(middleware.RequireScope(ScopeMaterialsWrite))
			}
			r.Post("/materials", h.materials.Upload)
			r.Put("/materials/{material_id}", h.materials.Update)
			r.Delete("/materials/{material_id}", h.materials.Delete)
		})

		r.Get("/materials", h.library.List)
		// popular регистрируется до /{material_id}: chi отдаёт приоритет
		// статическим сегментам, но явный порядок читается проще
		r.Get("/materials/popular", h.library.ListPopular)
		r.Get("/materials/{material_id}", h.materials.Get)
		r.Get("/materials/{material_id}/download", h.materials.Download)

		r.Get("/users/{user_id}/materials", h.library.ListByUser)
	})
}
