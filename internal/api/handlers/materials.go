// materials.go — HTTP handlers операций над материалами:
// загрузка, обновление, получение, скачивание, удаление.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/edustore/material-module/internal/api/errors"
	"github.com/bigkaa/edustore/material-module/internal/api/middleware"
	"github.com/bigkaa/edustore/material-module/internal/config"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
	"github.com/bigkaa/edustore/material-module/internal/service"
)

// MaterialsHandler — обработчик endpoints материалов.
type MaterialsHandler struct {
	validation *service.ValidationService
	library    *service.LibraryService
	cfg        *config.Config
}

// NewMaterialsHandler создаёт обработчик endpoints материалов.
func NewMaterialsHandler(
	validation *service.ValidationService,
	library *service.LibraryService,
	cfg *config.Config,
) *MaterialsHandler {
	return &MaterialsHandler{
		validation: validation,
		library:    library,
		cfg:        cfg,
	}
}

// Upload обрабатывает POST /api/v1/materials.
// Multipart form: file (обязательно), title (обязательно),
// description, subject (опционально).
func (h *MaterialsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Запас к MaxFileSize — на multipart-заголовки и текстовые поля
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+(1<<20))

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		if maxBytesExceeded(err) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает лимит %d байт", h.cfg.MaxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	data, filename, ok := h.readFilePart(w, r)
	if !ok {
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		apierrors.ValidationError(w, "Поле 'title' обязательно")
		return
	}

	// Владелец — subject из JWT; при отключённой аутентификации — поле формы
	userID := middleware.SubjectFromContext(r.Context())
	if userID == "" {
		userID = r.FormValue("user_id")
	}
	if userID == "" {
		apierrors.ValidationError(w, "Не удалось определить владельца материала")
		return
	}

	material, err := h.validation.Submit(r.Context(), &model.UploadRequest{
		Data:             data,
		Title:            title,
		Description:      r.FormValue("description"),
		Subject:          r.FormValue("subject"),
		UserID:           userID,
		OriginalFilename: filename,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, material)
}

// Update обрабатывает PUT /api/v1/materials/{material_id}.
// Multipart form — замена файла с повторной валидацией;
// JSON body — обновление только метаданных.
func (h *MaterialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "material_id")

	req := &model.UpdateRequest{}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+(1<<20))
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			if maxBytesExceeded(err) {
				apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает лимит %d байт", h.cfg.MaxFileSize))
				return
			}
			apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
			return
		}

		if file, header, err := r.FormFile("file"); err == nil {
			data, readErr := io.ReadAll(file)
			file.Close()
			if readErr != nil {
				apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения файла: %s", readErr.Error()))
				return
			}
			req.Data = data
			req.OriginalFilename = header.Filename
		}

		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		req.Subject = r.FormValue("subject")
	} else {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Subject     string `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
			return
		}
		req.Title = body.Title
		req.Description = body.Description
		req.Subject = body.Subject
	}

	if req.Data == nil && req.Title == "" && req.Description == "" && req.Subject == "" {
		apierrors.ValidationError(w, "Необходимо указать файл или хотя бы одно поле метаданных")
		return
	}

	material, err := h.validation.Update(r.Context(), id, req)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// Get обрабатывает GET /api/v1/materials/{material_id}.
// Каждое успешное получение учитывается как просмотр.
func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "material_id")

	material, err := h.library.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Материал %s не найден", id))
			return
		}
		apierrors.InternalError(w, "Ошибка получения материала")
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// Download обрабатывает GET /api/v1/materials/{material_id}/download.
// Каждое скачивание учитывается в счётчике downloads.
func (h *MaterialsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "material_id")

	reader, contentType, filename, err := h.library.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Материал %s не найден", id))
			return
		}
		apierrors.InternalError(w, "Ошибка чтения файла материала")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// Delete обрабатывает DELETE /api/v1/materials/{material_id}.
// Soft delete: материал помечается удалённым, файл убирается из хранилища.
func (h *MaterialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "material_id")

	if err := h.validation.Delete(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Материал %s не найден", id))
			return
		}
		apierrors.InternalError(w, "Ошибка удаления материала")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readFilePart извлекает обязательную часть 'file' из multipart form.
// При ошибке пишет ответ и возвращает ok == false.
func (h *MaterialsHandler) readFilePart(w http.ResponseWriter, r *http.Request) (data []byte, filename string, ok bool) {
	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return nil, "", false
	}
	defer file.Close()

	if header.Size > h.cfg.MaxFileSize {
		apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла %d превышает лимит %d байт", header.Size, h.cfg.MaxFileSize))
		return nil, "", false
	}

	data, err = io.ReadAll(file)
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка чтения файла: %s", err.Error()))
		return nil, "", false
	}
	if len(data) == 0 {
		apierrors.ValidationError(w, "Файл пуст")
		return nil, "", false
	}

	return data, header.Filename, true
}

// writePipelineError переводит ошибку конвейера валидации в HTTP-ответ.
func writePipelineError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrNotFound) {
		apierrors.NotFound(w, err.Error())
		return
	}

	var pErr *service.PipelineError
	if !errors.As(err, &pErr) {
		apierrors.InternalError(w, "Внутренняя ошибка обработки материала")
		return
	}

	switch pErr.Kind {
	case service.KindDuplicate:
		apierrors.DuplicateMaterial(w, pErr.Message)
	case service.KindStaging:
		apierrors.StagingFailed(w, pErr.Message)
	case service.KindDispatch:
		apierrors.DispatchFailed(w, pErr.Message)
	case service.KindRejected:
		apierrors.MaterialRejected(w, pErr.Message)
	case service.KindTimeout:
		apierrors.ValidationTimeout(w, pErr.Message)
	case service.KindCommit:
		apierrors.CommitFailed(w, pErr.Message)
	default:
		apierrors.InternalError(w, pErr.Message)
	}
}

// maxBytesExceeded распознаёт превышение лимита http.MaxBytesReader.
func maxBytesExceeded(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
