package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// TagRepository — теги и их связи с материалами.
type TagRepository interface {
	// FindOrCreate возвращает существующий тег или создаёт новый.
	FindOrCreate(ctx context.Context, name string) (*model.Tag, error)
	// Associate связывает материал с тегами. Существующие связи сохраняются.
	Associate(ctx context.Context, materialID string, tagIDs []int64) error
	// ReplaceAssociations заменяет все связи материала указанными тегами.
	ReplaceAssociations(ctx context.Context, materialID string, tagIDs []int64) error
	// ListByMaterial возвращает имена тегов материала.
	ListByMaterial(ctx context.Context, materialID string) ([]string, error)
}

// tagRepo — реализация TagRepository.
type tagRepo struct {
	db DBTX
}

// NewTagRepository создаёт репозиторий тегов.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepo{db: db}
}

func (r *tagRepo) FindOrCreate(ctx context.Context, name string) (*model.Tag, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("имя тега не может быть пустым")
	}

	// Вставка с возвратом id; при конфликте — обновление-пустышка,
	// чтобы RETURNING сработал и для существующей записи.
	query := `
		INSERT INTO tags (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`

	tag := &model.Tag{}
	if err := r.db.QueryRow(ctx, query, name).Scan(&tag.ID, &tag.Name); err != nil {
		return nil, fmt.Errorf("ошибка создания тега %q: %w", name, err)
	}
	return tag, nil
}

func (r *tagRepo) Associate(ctx context.Context, materialID string, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		query := `
			INSERT INTO material_tags (material_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`

		if _, err := r.db.Exec(ctx, query, materialID, tagID); err != nil {
			return fmt.Errorf("ошибка связывания материала с тегом %d: %w", tagID, err)
		}
	}
	return nil
}

func (r *tagRepo) ReplaceAssociations(ctx context.Context, materialID string, tagIDs []int64) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM material_tags WHERE material_id = $1`, materialID); err != nil {
		return fmt.Errorf("ошибка очистки тегов материала: %w", err)
	}
	return r.Associate(ctx, materialID, tagIDs)
}

func (r *tagRepo) ListByMaterial(ctx context.Context, materialID string) ([]string, error) {
	query := `
		SELECT t.name
		FROM tags t
		JOIN material_tags mt ON mt.tag_id = t.id
		WHERE mt.material_id = $1
		ORDER BY t.name`

	rows, err := r.db.Query(ctx, query, materialID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения тегов материала: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка сканирования тега: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
