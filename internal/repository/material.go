package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// MaterialRepository — интерфейс CRUD для таблицы materials.
type MaterialRepository interface {
	// Create фиксирует новый материал.
	Create(ctx context.Context, m *model.Material) error
	// GetByID возвращает материал по UUID. Теги не подгружаются.
	GetByID(ctx context.Context, id string) (*model.Material, error)
	// FindByFingerprint ищет активный материал с указанным отпечатком.
	// excludeID позволяет исключить сам обновляемый материал из поиска.
	FindByFingerprint(ctx context.Context, fingerprint, excludeID string) (*model.Material, error)
	// Update обновляет метаданные материала.
	Update(ctx context.Context, m *model.Material) error
	// Delete выполняет soft delete (status → deleted).
	Delete(ctx context.Context, id string) error
	// List возвращает список материалов с фильтрацией.
	List(ctx context.Context, filters MaterialListFilters, limit, offset int) ([]*model.Material, error)
	// ListByUser возвращает активные материалы пользователя.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Material, error)
	// ListPopular возвращает активные материалы, отсортированные
	// по сумме просмотров и скачиваний.
	ListPopular(ctx context.Context, limit int) ([]*model.Material, error)
	// IncrementViews увеличивает счётчик просмотров.
	IncrementViews(ctx context.Context, id string) error
	// IncrementDownloads увеличивает счётчик скачиваний.
	IncrementDownloads(ctx context.Context, id string) error
	// Count возвращает количество материалов с фильтрацией.
	Count(ctx context.Context, filters MaterialListFilters) (int, error)
	// UserStats возвращает агрегированные счётчики просмотров и скачиваний
	// по активным материалам пользователя.
	UserStats(ctx context.Context, userID string) (views, downloads int64, err error)
	// ActiveLocators возвращает локаторы всех активных материалов.
	// Используется фоновой сверкой blob-хранилища.
	ActiveLocators(ctx context.Context) (map[string]bool, error)
}

// MaterialListFilters — фильтры и сортировка для списка материалов.
type MaterialListFilters struct {
	Status    *string
	UserID    *string
	Subject   *string
	Extension *string
	// Tag фильтрует материалы, помеченные указанным тегом.
	Tag *string
	// Query выполняет частичный поиск по названию (ILIKE).
	Query *string
	// SortBy и SortOrder проверяются по whitelist в buildMaterialOrderBy.
	SortBy    string
	SortOrder string
}

// materialRepo — реализация MaterialRepository.
type materialRepo struct {
	db DBTX
}

// NewMaterialRepository создаёт репозиторий материалов.
func NewMaterialRepository(db DBTX) MaterialRepository {
	return &materialRepo{db: db}
}

// materialColumns — общий список колонок для SELECT-запросов.
const materialColumns = `id, title, user_id, url, description, subject,
		views, downloads, fingerprint, extension, locator, status,
		created_at, updated_at`

func (r *materialRepo) Create(ctx context.Context, m *model.Material) error {
	query := `
		INSERT INTO materials (id, title, user_id, url, description, subject,
			fingerprint, extension, locator, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.UserID, m.URL, m.Description, m.Subject,
		m.Fingerprint, m.Extension, m.Locator, m.Status,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: материал с таким отпечатком уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка фиксации материала: %w", err)
	}
	return nil
}

// scanMaterial сканирует строку результата в модель.
func scanMaterial(row pgx.Row) (*model.Material, error) {
	m := &model.Material{}
	err := row.Scan(
		&m.ID, &m.Title, &m.UserID, &m.URL, &m.Description, &m.Subject,
		&m.Views, &m.Downloads, &m.Fingerprint, &m.Extension, &m.Locator,
		&m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *materialRepo) GetByID(ctx context.Context, id string) (*model.Material, error) {
	query := fmt.Sprintf(`SELECT %s FROM materials WHERE id = $1`, materialColumns)

	m, err := scanMaterial(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения материала: %w", err)
	}
	return m, nil
}

func (r *materialRepo) FindByFingerprint(ctx context.Context, fingerprint, excludeID string) (*model.Material, error) {
	// Сравнение id как text: excludeID может быть пустой строкой
	// (поиск без исключения), которая не приводится к uuid.
	query := fmt.Sprintf(`
		SELECT %s FROM materials
		WHERE fingerprint = $1 AND status = 'active' AND id::text <> $2`, materialColumns)

	m, err := scanMaterial(r.db.QueryRow(ctx, query, fingerprint, excludeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска по отпечатку: %w", err)
	}
	return m, nil
}

func (r *materialRepo) Update(ctx context.Context, m *model.Material) error {
	query := `
		UPDATE materials
		SET title = $2, url = $3, description = $4, subject = $5,
			fingerprint = $6, extension = $7, locator = $8, status = $9,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		m.ID, m.Title, m.URL, m.Description, m.Subject,
		m.Fingerprint, m.Extension, m.Locator, m.Status,
	).Scan(&m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: материал с таким отпечатком уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка обновления материала: %w", err)
	}
	return nil
}

func (r *materialRepo) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE materials
		SET status = 'deleted', updated_at = now()
		WHERE id = $1 AND status != 'deleted'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления материала: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildMaterialWhere строит WHERE-условие и аргументы для фильтрации материалов.
func buildMaterialWhere(filters MaterialListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *filters.UserID)
		argNum++
	}
	if filters.Subject != nil {
		conditions = append(conditions, fmt.Sprintf("subject = $%d", argNum))
		args = append(args, *filters.Subject)
		argNum++
	}
	if filters.Extension != nil {
		conditions = append(conditions, fmt.Sprintf("extension = $%d", argNum))
		args = append(args, *filters.Extension)
		argNum++
	}
	// Фильтр по тегу: материал должен быть помечен указанным тегом.
	if filters.Tag != nil {
		conditions = append(conditions, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM material_tags mt
				JOIN tags t ON t.id = mt.tag_id
				WHERE mt.material_id = materials.id AND t.name = $%d)`, argNum))
		args = append(args, *filters.Tag)
		argNum++
	}
	// Поиск по названию — всегда partial match (ILIKE).
	if filters.Query != nil && *filters.Query != "" {
		conditions = append(conditions, fmt.Sprintf("title ILIKE $%d", argNum))
		args = append(args, "%"+*filters.Query+"%")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// Допустимые поля сортировки (whitelist для предотвращения SQL-инъекций).
const defaultSortColumn = "created_at"

// buildMaterialOrderBy строит ORDER BY с безопасным whitelist полей.
func buildMaterialOrderBy(sortBy, sortOrder string) string {
	column := defaultSortColumn
	switch sortBy {
	case "title":
		column = "title"
	case "views":
		column = "views"
	case "downloads":
		column = "downloads"
	case defaultSortColumn:
		column = defaultSortColumn
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return fmt.Sprintf("ORDER BY %s %s", column, direction)
}

// queryMaterials выполняет запрос и сканирует все строки.
func (r *materialRepo) queryMaterials(ctx context.Context, query string, args ...any) ([]*model.Material, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка материалов: %w", err)
	}
	defer rows.Close()

	var result []*model.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования материала: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *materialRepo) List(ctx context.Context, filters MaterialListFilters, limit, offset int) ([]*model.Material, error) {
	where, args := buildMaterialWhere(filters, 1)
	argNum := len(args) + 1
	orderBy := buildMaterialOrderBy(filters.SortBy, filters.SortOrder)

	query := fmt.Sprintf(`
		SELECT %s FROM materials
		%s
		%s
		LIMIT $%d OFFSET $%d`, materialColumns, where, orderBy, argNum, argNum+1)

	args = append(args, limit, offset)
	return r.queryMaterials(ctx, query, args...)
}

func (r *materialRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.Material, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM materials
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, materialColumns)

	return r.queryMaterials(ctx, query, userID, limit, offset)
}

func (r *materialRepo) ListPopular(ctx context.Context, limit int) ([]*model.Material, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM materials
		WHERE status = 'active'
		ORDER BY (views + downloads) DESC, created_at DESC
		LIMIT $1`, materialColumns)

	return r.queryMaterials(ctx, query, limit)
}

func (r *materialRepo) IncrementViews(ctx context.Context, id string) error {
	query := `UPDATE materials SET views = views + 1 WHERE id = $1 AND status = 'active'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка увеличения счётчика просмотров: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialRepo) IncrementDownloads(ctx context.Context, id string) error {
	query := `UPDATE materials SET downloads = downloads + 1 WHERE id = $1 AND status = 'active'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка увеличения счётчика скачиваний: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialRepo) Count(ctx context.Context, filters MaterialListFilters) (int, error) {
	where, args := buildMaterialWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM materials %s`, where)

	var count int
	err := r.db.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта материалов: %w", err)
	}
	return count, nil
}

func (r *materialRepo) UserStats(ctx context.Context, userID string) (int64, int64, error) {
	query := `
		SELECT COALESCE(SUM(views), 0), COALESCE(SUM(downloads), 0)
		FROM materials
		WHERE user_id = $1 AND status = 'active'`

	var views, downloads int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&views, &downloads); err != nil {
		return 0, 0, fmt.Errorf("ошибка подсчёта статистики пользователя: %w", err)
	}
	return views, downloads, nil
}

func (r *materialRepo) ActiveLocators(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.Query(ctx, `SELECT locator FROM materials WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки локаторов: %w", err)
	}
	defer rows.Close()

	locators := make(map[string]bool)
	for rows.Next() {
		var locator string
		if scanErr := rows.Scan(&locator); scanErr != nil {
			return nil, fmt.Errorf("ошибка чтения локатора: %w", scanErr)
		}
		locators[locator] = true
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("ошибка обхода локаторов: %w", rowsErr)
	}
	return locators, nil
}
