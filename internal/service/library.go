// library.go — чтение библиотеки материалов: карточки, списки,
// популярность, скачивание.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/blobstore"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
	"github.com/bigkaa/edustore/material-module/internal/repository"
)

// LibraryService — read-path материалов. Карточки отдаются через
// LRU-кэш, счётчики просмотров и скачиваний обновляются best effort.
type LibraryService struct {
	materials repository.MaterialRepository
	tags      repository.TagRepository
	blobs     blobstore.Store
	cache     *CacheService
	logger    *slog.Logger
}

// NewLibraryService создаёт сервис чтения библиотеки.
func NewLibraryService(
	materials repository.MaterialRepository,
	tags repository.TagRepository,
	blobs blobstore.Store,
	cache *CacheService,
	logger *slog.Logger,
) *LibraryService {
	return &LibraryService{
		materials: materials,
		tags:      tags,
		blobs:     blobs,
		cache:     cache,
		logger:    logger.With(slog.String("component", "library_service")),
	}
}

// Get возвращает карточку материала и увеличивает счётчик просмотров.
// Кэшированная карточка может отдавать слегка устаревшие счётчики —
// источником истины остаётся база.
func (s *LibraryService) Get(ctx context.Context, id string) (*model.Material, error) {
	if m, ok := s.cache.Get(id); ok {
		s.countView(id)
		return m, nil
	}

	m, err := s.loadWithTags(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Set(id, m)
	s.countView(id)
	return m, nil
}

// Search выполняет поиск активных материалов с фильтрацией,
// сортировкой и пагинацией. Статус всегда закреплён как active.
func (s *LibraryService) Search(ctx context.Context, filters repository.MaterialListFilters, limit, offset int) ([]*model.Material, int, error) {
	status := model.StatusActive
	filters.Status = &status

	list, err := s.materials.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка поиска материалов: %w", err)
	}
	s.attachTags(ctx, list)

	total, err := s.materials.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта материалов: %w", err)
	}

	return list, total, nil
}

// UserLibrary — содержимое библиотеки пользователя: материалы,
// их общее количество и агрегированные счётчики.
type UserLibrary struct {
	Materials      []*model.Material
	Total          int
	TotalViews     int64
	TotalDownloads int64
}

// ListByUser возвращает активные материалы пользователя, их общее
// количество (для пагинации) и агрегированную статистику.
func (s *LibraryService) ListByUser(ctx context.Context, userID string, limit, offset int) (*UserLibrary, error) {
	list, err := s.materials.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения материалов пользователя: %w", err)
	}
	s.attachTags(ctx, list)

	status := model.StatusActive
	total, err := s.materials.Count(ctx, repository.MaterialListFilters{
		Status: &status,
		UserID: &userID,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта материалов пользователя: %w", err)
	}

	views, downloads, err := s.materials.UserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики пользователя: %w", err)
	}

	return &UserLibrary{
		Materials:      list,
		Total:          total,
		TotalViews:     views,
		TotalDownloads: downloads,
	}, nil
}

// ListPopular возвращает материалы, отсортированные по сумме
// просмотров и скачиваний.
func (s *LibraryService) ListPopular(ctx context.Context, limit int) ([]*model.Material, error) {
	list, err := s.materials.ListPopular(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения популярных материалов: %w", err)
	}
	s.attachTags(ctx, list)
	return list, nil
}

// Download открывает файл материала для потоковой отдачи и увеличивает
// счётчик скачиваний. Вызывающий код обязан закрыть ReadCloser.
func (s *LibraryService) Download(ctx context.Context, id string) (io.ReadCloser, string, string, error) {
	m, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", "", ErrNotFound
		}
		return nil, "", "", fmt.Errorf("ошибка чтения материала: %w", err)
	}
	if m.Status != model.StatusActive {
		return nil, "", "", ErrNotFound
	}

	reader, contentType, err := s.blobs.Open(ctx, m.Locator)
	if err != nil {
		return nil, "", "", fmt.Errorf("ошибка открытия файла материала: %w", err)
	}

	if err := s.materials.IncrementDownloads(ctx, id); err != nil {
		s.logger.Warn("Не удалось увеличить счётчик скачиваний",
			slog.String("material_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.cache.Delete(id)

	filename := fmt.Sprintf("%s.%s", m.Title, m.Extension)
	return reader, contentType, filename, nil
}

// loadWithTags читает материал и его теги из базы.
func (s *LibraryService) loadWithTags(ctx context.Context, id string) (*model.Material, error) {
	m, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения материала: %w", err)
	}
	if m.Status != model.StatusActive {
		return nil, ErrNotFound
	}

	tags, err := s.tags.ListByMaterial(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения тегов материала: %w", err)
	}
	m.Tags = tags
	return m, nil
}

// attachTags подгружает теги для списка материалов.
// Ошибка чтения тегов не прерывает выдачу списка.
func (s *LibraryService) attachTags(ctx context.Context, list []*model.Material) {
	for _, m := range list {
		tags, err := s.tags.ListByMaterial(ctx, m.ID)
		if err != nil {
			s.logger.Warn("Не удалось прочитать теги материала",
				slog.String("material_id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.Tags = tags
	}
}

// contextWithShortTimeout — контекст для фоновых обновлений счётчиков.
func contextWithShortTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 3*time.Second)
}

// countView увеличивает счётчик просмотров best effort.
func (s *LibraryService) countView(id string) {
	ctx, cancel := contextWithShortTimeout()
	defer cancel()

	if err := s.materials.IncrementViews(ctx, id); err != nil {
		s.logger.Debug("Не удалось увеличить счётчик просмотров",
			slog.String("material_id", id),
			slog.String("error", err.Error()),
		)
	}
}
