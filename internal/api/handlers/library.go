// library.go — HTTP handlers библиотечных выборок: поиск,
// материалы пользователя и популярные материалы.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/edustore/material-module/internal/api/errors"
	"github.com/bigkaa/edustore/material-module/internal/repository"
	"github.com/bigkaa/edustore/material-module/internal/service"
)

// LibraryHandler — обработчик endpoints просмотра библиотеки.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler создаёт обработчик библиотечных endpoints.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// List обрабатывает GET /api/v1/materials — поиск по библиотеке.
// Фильтры: q (частичное совпадение по названию), tag, subject,
// extension, user_id. Сортировка: sort (created_at, title, views,
// downloads), order (asc, desc).
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := paginationParams(w, r)
	if !ok {
		return
	}

	filters := repository.MaterialListFilters{
		SortBy:    r.URL.Query().Get("sort"),
		SortOrder: r.URL.Query().Get("order"),
	}
	if v := r.URL.Query().Get("q"); v != "" {
		filters.Query = &v
	}
	if v := r.URL.Query().Get("tag"); v != "" {
		filters.Tag = &v
	}
	if v := r.URL.Query().Get("subject"); v != "" {
		filters.Subject = &v
	}
	if v := r.URL.Query().Get("extension"); v != "" {
		filters.Extension = &v
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		filters.UserID = &v
	}

	items, total, err := h.library.Search(r.Context(), filters, limit, offset)
	if err != nil {
		apierrors.InternalError(w, "Ошибка поиска материалов")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < total,
	})
}

// ListByUser обрабатывает GET /api/v1/users/{user_id}/materials.
// Пагинация: limit (1-1000, по умолчанию 50), offset.
func (h *LibraryHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit, offset, ok := paginationParams(w, r)
	if !ok {
		return
	}

	lib, err := h.library.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения материалов пользователя")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    lib.Materials,
		"total":    lib.Total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < lib.Total,
		"stats": map[string]any{
			"total_views":     lib.TotalViews,
			"total_downloads": lib.TotalDownloads,
		},
	})
}

// ListPopular обрабатывает GET /api/v1/materials/popular.
// Параметр limit: 1-100, по умолчанию 10.
func (h *LibraryHandler) ListPopular(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			apierrors.ValidationError(w, "Параметр limit должен быть от 1 до 100")
			return
		}
		limit = parsed
	}

	items, err := h.library.ListPopular(r.Context(), limit)
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения популярных материалов")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"limit": limit,
	})
}

// paginationParams разбирает limit/offset из query string.
// При ошибке пишет ответ и возвращает ok == false.
func paginationParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = 50
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			apierrors.ValidationError(w, "Параметр limit должен быть от 1 до 1000")
			return 0, 0, false
		}
		limit = parsed
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return 0, 0, false
		}
		offset = parsed
	}

	return limit, offset, true
}
