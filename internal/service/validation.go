// Пакет service — бизнес-логика Material Module.
// validation.go — оркестратор конвейера валидации материалов.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/edustore/material-module/internal/blobstore"
	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/config"
	"github.com/bigkaa/edustore/material-module/internal/correlation"
	"github.com/bigkaa/edustore/material-module/internal/domain/fingerprint"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
	"github.com/bigkaa/edustore/material-module/internal/domain/pipeline"
	"github.com/bigkaa/edustore/material-module/internal/repository"
)

// Темы (subject) сообщений шины.
const (
	// SubjectAnalysis — запрос анализа материала
	SubjectAnalysis = "analysis"
	// SubjectSave — подтверждение фиксации материала
	SubjectSave = "save"
)

// validationsTotal — итоги прохождения конвейера по терминальным состояниям.
var validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mm_validations_total",
	Help: "Общее количество запросов валидации по итоговому состоянию.",
}, []string{"result"})

// validationDuration — длительность полного конвейера валидации,
// от дедупликации до терминального состояния. Бакеты растянуты
// под ожидание вердикта анализатора.
var validationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "mm_validation_duration_seconds",
	Help:    "Длительность конвейера валидации материала в секундах.",
	Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
})

// ValidationService — оркестратор конвейера валидации.
//
// Конвейер одной загрузки:
//  1. Отпечаток содержимого (SHA-256) и дедупликация по базе
//  2. Запись файла в blob-хранилище под новым correlation id
//  3. Регистрация слота ожидания, затем публикация запроса анализа
//  4. Блокирующее ожидание вердикта (или таймаут)
//  5. Фиксация метаданных в транзакции, подтверждение save,
//     fire-and-forget уведомление
//
// Любой отказ после шага 2 компенсируется удалением staged-файла.
type ValidationService struct {
	cfg       *config.Config
	materials repository.MaterialRepository
	committer repository.MaterialCommitter
	blobs     blobstore.Store
	bus       bus.Publisher
	registry  *correlation.Registry
	notify    *NotifyService
	cache     *CacheService
	logger    *slog.Logger
}

// NewValidationService создаёт оркестратор валидации.
func NewValidationService(
	cfg *config.Config,
	materials repository.MaterialRepository,
	committer repository.MaterialCommitter,
	blobs blobstore.Store,
	pub bus.Publisher,
	registry *correlation.Registry,
	notify *NotifyService,
	cache *CacheService,
	logger *slog.Logger,
) *ValidationService {
	return &ValidationService{
		cfg:       cfg,
		materials: materials,
		committer: committer,
		blobs:     blobs,
		bus:       pub,
		registry:  registry,
		notify:    notify,
		cache:     cache,
		logger:    logger.With(slog.String("component", "validation_service")),
	}
}

// Submit проводит новый материал через весь конвейер валидации.
// Блокирует вызывающий поток до терминального состояния.
func (s *ValidationService) Submit(ctx context.Context, req *model.UploadRequest) (*model.Material, error) {
	start := time.Now()
	defer func() { validationDuration.Observe(time.Since(start).Seconds()) }()

	sm := pipeline.New()
	fp := fingerprint.Compute(req.Data, req.OriginalFilename)

	log := s.logger.With(slog.String("fingerprint", fp.Hash))

	// 1. Дедупликация: активный материал с тем же отпечатком — отказ
	if perr := s.checkDuplicate(ctx, fp.Hash, ""); perr != nil {
		return nil, perr
	}
	s.advance(sm, pipeline.StateDeduped, log)

	// 2-4. Staging, публикация, ожидание вердикта
	correlationID := uuid.New().String()
	locator := blobstore.MakeLocator(correlationID, req.OriginalFilename)
	log = log.With(slog.String("correlation_id", correlationID))

	url, verdict, perr := s.stageAndValidate(ctx, sm, correlationID, locator, req.Data, fp.Extension, log)
	if perr != nil {
		return nil, perr
	}

	// 5. Фиксация метаданных
	m := &model.Material{
		ID:          correlationID,
		Title:       req.Title,
		UserID:      req.UserID,
		URL:         url,
		Description: req.Description,
		Subject:     chooseSubject(req.Subject, verdict.Subject),
		Fingerprint: fp.Hash,
		Extension:   fp.Extension,
		Locator:     locator,
		Status:      model.StatusActive,
	}
	tags := mergeTags(verdict, req.Subject)

	if err := s.committer.CommitCreate(ctx, m, tags); err != nil {
		s.compensateBlob(locator, log)
		if errors.Is(err, repository.ErrConflict) {
			// Конкурентная загрузка того же файла успела раньше
			s.advance(sm, pipeline.StateCommitFailed, log)
			validationsTotal.WithLabelValues("duplicate").Inc()
			return nil, pipelineErr(KindDuplicate, "материал с таким содержимым уже существует", err)
		}
		s.advance(sm, pipeline.StateCommitFailed, log)
		validationsTotal.WithLabelValues("commit_failed").Inc()
		log.Error("Ошибка фиксации материала", slog.String("error", err.Error()))
		return nil, pipelineErr(KindCommit, "ошибка фиксации метаданных", err)
	}
	m.Tags = tags
	s.advance(sm, pipeline.StateCommitted, log)
	validationsTotal.WithLabelValues("committed").Inc()

	// Подтверждение фиксации — строго после записи в базу
	s.publishSaveAck(ctx, correlationID, log)

	// Уведомление — fire-and-forget, не влияет на результат
	s.notify.MaterialCommitted(m, verdict)

	s.cache.Set(m.ID, m)

	log.Info("Материал зафиксирован",
		slog.String("material_id", m.ID),
		slog.String("user_id", m.UserID),
		slog.String("title", m.Title),
	)
	return m, nil
}

// Update обновляет материал. При req.Data == nil обновляются только
// метаданные без обращения к шине и blob-хранилищу. При наличии нового
// файла материал проходит полный конвейер повторно; старый blob
// удаляется только после успешной фиксации.
func (s *ValidationService) Update(ctx context.Context, id string, req *model.UpdateRequest) (*model.Material, error) {
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

	applyMetadata(m, req)

	// Только метаданные — без повторной валидации
	if req.Data == nil {
		if err := s.committer.CommitUpdate(ctx, m, nil); err != nil {
			return nil, fmt.Errorf("ошибка обновления материала: %w", err)
		}
		s.cache.Delete(id)
		s.logger.Info("Метаданные материала обновлены", slog.String("material_id", id))
		return m, nil
	}

	// Новый файл — полный конвейер с новым correlation id
	start := time.Now()
	defer func() { validationDuration.Observe(time.Since(start).Seconds()) }()

	sm := pipeline.New()
	fp := fingerprint.Compute(req.Data, req.OriginalFilename)
	log := s.logger.With(
		slog.String("material_id", id),
		slog.String("fingerprint", fp.Hash),
	)

	if perr := s.checkDuplicate(ctx, fp.Hash, id); perr != nil {
		return nil, perr
	}
	s.advance(sm, pipeline.StateDeduped, log)

	correlationID := uuid.New().String()
	locator := blobstore.MakeLocator(correlationID, req.OriginalFilename)
	log = log.With(slog.String("correlation_id", correlationID))

	url, verdict, perr := s.stageAndValidate(ctx, sm, correlationID, locator, req.Data, fp.Extension, log)
	if perr != nil {
		return nil, perr
	}

	oldLocator := m.Locator
	m.URL = url
	m.Fingerprint = fp.Hash
	m.Extension = fp.Extension
	m.Locator = locator
	m.Subject = chooseSubject(m.Subject, verdict.Subject)
	tags := mergeTags(verdict, m.Subject)

	if err := s.committer.CommitUpdate(ctx, m, tags); err != nil {
		// Компенсация: новый blob удаляется, старый материал не тронут
		s.compensateBlob(locator, log)
		if errors.Is(err, repository.ErrConflict) {
			s.advance(sm, pipeline.StateCommitFailed, log)
			validationsTotal.WithLabelValues("duplicate").Inc()
			return nil, pipelineErr(KindDuplicate, "материал с таким содержимым уже существует", err)
		}
		s.advance(sm, pipeline.StateCommitFailed, log)
		validationsTotal.WithLabelValues("commit_failed").Inc()
		log.Error("Ошибка фиксации обновления", slog.String("error", err.Error()))
		return nil, pipelineErr(KindCommit, "ошибка фиксации метаданных", err)
	}
	m.Tags = tags
	s.advance(sm, pipeline.StateCommitted, log)
	validationsTotal.WithLabelValues("committed").Inc()

	s.publishSaveAck(ctx, correlationID, log)
	s.notify.MaterialCommitted(m, verdict)
	s.cache.Delete(id)

	// Старый blob больше не нужен
	if oldLocator != "" && oldLocator != locator {
		s.compensateBlob(oldLocator, log)
	}

	log.Info("Материал обновлён с новым файлом", slog.String("material_id", id))
	return m, nil
}

// Delete выполняет soft delete материала и удаляет его blob.
func (s *ValidationService) Delete(ctx context.Context, id string) error {
	m, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка чтения материала: %w", err)
	}
	if m.Status != model.StatusActive {
		return ErrNotFound
	}

	if err := s.materials.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка удаления материала: %w", err)
	}

	s.cache.Delete(id)
	s.compensateBlob(m.Locator, s.logger)

	s.logger.Info("Материал удалён",
		slog.String("material_id", id),
		slog.String("user_id", m.UserID),
	)
	return nil
}

// checkDuplicate ищет активный материал с тем же отпечатком.
// excludeID исключает сам обновляемый материал из поиска.
func (s *ValidationService) checkDuplicate(ctx context.Context, hash, excludeID string) *PipelineError {
	existing, err := s.materials.FindByFingerprint(ctx, hash, excludeID)
	if err == nil {
		validationsTotal.WithLabelValues("duplicate").Inc()
		return pipelineErr(KindDuplicate,
			fmt.Sprintf("материал с таким содержимым уже существует (id %s)", existing.ID), nil)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		validationsTotal.WithLabelValues("commit_failed").Inc()
		s.logger.Error("Ошибка проверки дубликатов", slog.String("error", err.Error()))
		return pipelineErr(KindCommit, "ошибка проверки дубликатов", err)
	}
	return nil
}

// stageAndValidate выполняет среднюю часть конвейера: staging файла,
// регистрацию слота, публикацию запроса анализа и ожидание вердикта.
// При любом отказе staged-файл удаляется.
func (s *ValidationService) stageAndValidate(
	ctx context.Context,
	sm *pipeline.Machine,
	correlationID, locator string,
	data []byte,
	extension string,
	log *slog.Logger,
) (string, *model.Verdict, *PipelineError) {
	// Staging
	contentType := mime.TypeByExtension("." + extension)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.blobs.Put(ctx, locator, data, contentType)
	if err != nil {
		s.advance(sm, pipeline.StateStagingFailed, log)
		validationsTotal.WithLabelValues("staging_failed").Inc()
		log.Error("Ошибка staging файла", slog.String("error", err.Error()))
		return "", nil, pipelineErr(KindStaging, "ошибка сохранения файла в хранилище", err)
	}
	s.advance(sm, pipeline.StateStaged, log)

	// Слот регистрируется ДО публикации: вердикт не может обогнать
	// регистрацию и потеряться.
	pending, err := s.registry.Register(correlationID, s.cfg.ValidationTimeout)
	if err != nil {
		s.compensateBlob(locator, log)
		s.advance(sm, pipeline.StatePublishFailed, log)
		validationsTotal.WithLabelValues("publish_failed").Inc()
		return "", nil, pipelineErr(KindDispatch, "ошибка регистрации запроса валидации", err)
	}

	// Публикация запроса анализа
	body, err := json.Marshal(model.AnalysisRequest{FileURL: url, Filename: locator})
	if err == nil {
		err = s.bus.Publish(ctx, s.cfg.AnalysisQueue, bus.Message{
			Body:          body,
			CorrelationID: correlationID,
			Subject:       SubjectAnalysis,
			ContentType:   "application/json",
		})
	}
	if err != nil {
		s.registry.Cancel(correlationID)
		s.compensateBlob(locator, log)
		s.advance(sm, pipeline.StatePublishFailed, log)
		validationsTotal.WithLabelValues("publish_failed").Inc()
		log.Error("Ошибка публикации запроса анализа", slog.String("error", err.Error()))
		return "", nil, pipelineErr(KindDispatch, "ошибка отправки запроса анализа", err)
	}
	s.advance(sm, pipeline.StateAnalysisSent, log)

	// Ожидание вердикта
	verdict, err := pending.Await()
	if err != nil {
		s.compensateBlob(locator, log)
		s.advance(sm, pipeline.StateTimedOut, log)
		validationsTotal.WithLabelValues("timed_out").Inc()
		log.Warn("Таймаут ожидания вердикта",
			slog.Duration("timeout", s.cfg.ValidationTimeout))
		return "", nil, pipelineErr(KindTimeout, "анализатор не ответил за отведённое время", err)
	}

	if !verdict.Valid {
		s.compensateBlob(locator, log)
		s.advance(sm, pipeline.StateRejected, log)
		validationsTotal.WithLabelValues("rejected").Inc()
		reason := verdict.Reason
		if reason == "" {
			reason = "материал отклонён анализатором"
		}
		log.Info("Материал отклонён анализатором", slog.String("reason", reason))
		return "", nil, pipelineErr(KindRejected, reason, nil)
	}

	return url, verdict, nil
}

// publishSaveAck публикует подтверждение фиксации в очередь анализа.
// Вызывается строго после записи материала в базу. Ошибка публикации
// не откатывает фиксацию — только предупреждение в лог.
func (s *ValidationService) publishSaveAck(ctx context.Context, correlationID string, log *slog.Logger) {
	body, _ := json.Marshal(map[string]string{"status": "saved"})
	err := s.bus.Publish(ctx, s.cfg.AnalysisQueue, bus.Message{
		Body:          body,
		CorrelationID: correlationID,
		Subject:       SubjectSave,
		ContentType:   "application/json",
	})
	if err != nil {
		log.Warn("Не удалось отправить подтверждение фиксации",
			slog.String("error", err.Error()))
	}
}

// compensateBlob удаляет staged-файл. Ошибка удаления не прерывает
// компенсацию, только фиксируется в логе.
func (s *ValidationService) compensateBlob(locator string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.blobs.Delete(ctx, locator); err != nil {
		log.Error("Ошибка компенсации blob",
			slog.String("locator", locator),
			slog.String("error", err.Error()),
		)
	}
}

// advance переводит машину состояний и логирует недопустимый переход.
func (s *ValidationService) advance(sm *pipeline.Machine, target pipeline.State, log *slog.Logger) {
	if err := sm.Advance(target); err != nil {
		log.Error("Недопустимый переход конвейера", slog.String("error", err.Error()))
	}
}

// chooseSubject предпочитает предмет, определённый анализатором.
func chooseSubject(declared, analyzed string) string {
	if analyzed != "" {
		return analyzed
	}
	return declared
}

// mergeTags собирает итоговый набор тегов материала: выводы анализатора
// (теги и тема) плюс заявленный предмет. Пустые и повторяющиеся имена
// отбрасываются.
func mergeTags(verdict *model.Verdict, subject string) []string {
	seen := make(map[string]bool)
	var result []string

	add := func(name string) {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		result = append(result, name)
	}

	for _, t := range verdict.Tags {
		add(t)
	}
	add(verdict.Topic)
	add(subject)
	return result
}

// applyMetadata накладывает непустые поля запроса на материал.
func applyMetadata(m *model.Material, req *model.UpdateRequest) {
	if req.Title != "" {
		m.Title = req.Title
	}
	if req.Description != "" {
		m.Description = req.Description
	}
	if req.Subject != "" {
		m.Subject = req.Subject
	}
}
