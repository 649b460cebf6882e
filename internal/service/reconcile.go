// reconcile.go — фоновая сверка blob-хранилища с таблицей materials.
//
// Сверка обнаруживает два класса проблем:
//   - orphaned_blob: объект в хранилище, на который не ссылается ни один
//     активный материал. Появляется после сбоя компенсации (процесс упал
//     между записью файла и удалением). Такие объекты удаляются.
//   - missing_blob: активный материал, объект которого отсутствует
//     в хранилище. Не исправляется автоматически, только фиксируется.
//
// Свежие объекты (моложе minAge) пропускаются: они могут принадлежать
// валидациям, ещё ожидающим вердикта.
//
// Запускается как горутина с периодическим тикером (MM_RECONCILE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edustore/material-module/internal/blobstore"
	"github.com/bigkaa/edustore/material-module/internal/repository"
)

// Prometheus метрики сверки
var (
	// reconcileRunsTotal — количество запусков сверки.
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mm_reconcile_runs_total",
		Help: "Общее количество запусков сверки blob-хранилища",
	})

	// reconcileIssuesTotal — количество обнаруженных проблем по типу.
	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mm_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	// reconcileDurationSeconds — длительность выполнения сверки.
	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mm_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// BlobLister — выборка объектов хранилища для сверки.
type BlobLister interface {
	ListOlderThan(minAge time.Duration) ([]string, error)
	Delete(ctx context.Context, locator string) (bool, error)
	Exists(ctx context.Context, locator string) (bool, error)
}

// ReconcileResult — итог одного цикла сверки.
type ReconcileResult struct {
	// StartedAt — время начала сверки
	StartedAt time.Time `json:"started_at"`
	// CompletedAt — время завершения сверки
	CompletedAt time.Time `json:"completed_at"`
	// BlobsChecked — количество проверенных объектов
	BlobsChecked int `json:"blobs_checked"`
	// OrphansRemoved — количество удалённых объектов-сирот
	OrphansRemoved int `json:"orphans_removed"`
	// MissingBlobs — локаторы активных материалов без объекта
	MissingBlobs []string `json:"missing_blobs,omitempty"`
}

// ReconcileService — сервис фоновой сверки blob-хранилища.
type ReconcileService struct {
	materials repository.MaterialRepository
	blobs     BlobLister
	interval  time.Duration
	minAge    time.Duration
	logger    *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewReconcileService создаёт сервис сверки.
// minAge — минимальный возраст объекта для попадания в сверку.
func NewReconcileService(
	materials repository.MaterialRepository,
	blobs BlobLister,
	interval time.Duration,
	minAge time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		materials: materials,
		blobs:     blobs,
		interval:  interval,
		minAge:    minAge,
		logger:    logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
func (rs *ReconcileService) Start(ctx context.Context) {
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(rsCtx)

	rs.logger.Info("Сверка blob-хранилища запущена",
		slog.String("interval", rs.interval.String()),
		slog.String("min_age", rs.minAge.String()),
	)
}

// Stop останавливает фоновой процесс сверки.
func (rs *ReconcileService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Сверка blob-хранилища остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

// run — основной цикл фоновой горутины.
func (rs *ReconcileService) run(ctx context.Context) {
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл сверки.
// Потокобезопасен: если сверка уже выполняется, возвращает nil, true.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileResult, bool) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Сверка начата")

	result := &ReconcileResult{StartedAt: startedAt}

	active, err := rs.materials.ActiveLocators(ctx)
	if err != nil {
		rs.logger.Error("Ошибка выборки активных локаторов",
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	onDisk, err := rs.blobs.ListOlderThan(rs.minAge)
	if err != nil {
		rs.logger.Error("Ошибка чтения blob-хранилища",
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	result.BlobsChecked = len(onDisk)

	// 1. Объекты-сироты: на диске, но без активного материала
	seen := make(map[string]bool, len(onDisk))
	for _, locator := range onDisk {
		seen[locator] = true
		if active[locator] {
			continue
		}

		reconcileIssuesTotal.WithLabelValues("orphaned_blob").Inc()
		removed, delErr := rs.blobs.Delete(ctx, locator)
		if delErr != nil {
			rs.logger.Warn("Ошибка удаления объекта-сироты",
				slog.String("locator", locator),
				slog.String("error", delErr.Error()),
			)
			continue
		}
		if removed {
			result.OrphansRemoved++
			rs.logger.Info("Удалён объект-сирота", slog.String("locator", locator))
		}
	}

	// 2. Активные материалы без объекта в хранилище.
	// Проверяем только локаторы, не попавшие в листинг: объект мог быть
	// моложе minAge, поэтому отсутствие подтверждаем через Exists.
	for locator := range active {
		if seen[locator] {
			continue
		}
		exists, exErr := rs.blobs.Exists(ctx, locator)
		if exErr != nil {
			rs.logger.Warn("Ошибка проверки объекта",
				slog.String("locator", locator),
				slog.String("error", exErr.Error()),
			)
			continue
		}
		if !exists {
			reconcileIssuesTotal.WithLabelValues("missing_blob").Inc()
			result.MissingBlobs = append(result.MissingBlobs, locator)
			rs.logger.Error("Активный материал без объекта в хранилище",
				slog.String("locator", locator),
			)
		}
	}

	result.CompletedAt = time.Now().UTC()
	duration := result.CompletedAt.Sub(startedAt)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())

	rs.logger.Info("Сверка завершена",
		slog.Int("blobs_checked", result.BlobsChecked),
		slog.Int("orphans_removed", result.OrphansRemoved),
		slog.Int("missing_blobs", len(result.MissingBlobs)),
		slog.Duration("duration", duration),
	)

	return result, false
}

// компиляционная проверка: DiskStore подходит под BlobLister
var _ BlobLister = (*blobstore.DiskStore)(nil)
