package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/config"
	"github.com/bigkaa/edustore/material-module/internal/correlation"
	"github.com/bigkaa/edustore/material-module/internal/domain/model"
	"github.com/bigkaa/edustore/material-module/internal/repository"
)

// --- Фейки для unit-тестов оркестратора ---

// eventLog — упорядоченный журнал событий конвейера для проверки порядка.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// indexOf возвращает позицию первого события с указанным префиксом или -1.
func (l *eventLog) indexOf(prefix string) int {
	for i, e := range l.list() {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// fakeStore — in-memory blob-хранилище.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	log     *eventLog
}

func newFakeStore(log *eventLog) *fakeStore {
	return &fakeStore{objects: make(map[string][]byte), log: log}
}

func (s *fakeStore) Put(_ context.Context, locator string, data []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	s.mu.Lock()
	s.objects[locator] = data
	s.mu.Unlock()
	s.log.add("put:" + locator)
	return "http://blobs.local/" + locator, nil
}

func (s *fakeStore) Exists(_ context.Context, locator string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[locator]
	return ok, nil
}

func (s *fakeStore) Open(_ context.Context, locator string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	data, ok := s.objects[locator]
	s.mu.Unlock()
	if !ok {
		return nil, "", errors.New("объект не найден")
	}
	return io.NopCloser(bytes.NewReader(data)), "application/pdf", nil
}

func (s *fakeStore) Delete(_ context.Context, locator string) (bool, error) {
	s.mu.Lock()
	_, ok := s.objects[locator]
	delete(s.objects, locator)
	s.mu.Unlock()
	if ok {
		s.log.add("delete:" + locator)
	}
	return ok, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakeBus — шина с журналом публикаций. onAnalysis имитирует анализатор:
// вызывается в отдельной горутине для каждого запроса анализа.
type fakeBus struct {
	mu         sync.Mutex
	published  []bus.Message
	failSubj   map[string]error
	onAnalysis func(msg bus.Message)
	log        *eventLog
}

func newFakeBus(log *eventLog) *fakeBus {
	return &fakeBus{failSubj: make(map[string]error), log: log}
}

func (b *fakeBus) Publish(_ context.Context, _ string, msg bus.Message) error {
	if err := b.failSubj[msg.Subject]; err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, msg)
	b.mu.Unlock()
	b.log.add("publish:" + msg.Subject)
	if msg.Subject == SubjectAnalysis && b.onAnalysis != nil {
		go b.onAnalysis(msg)
	}
	return nil
}

// bySubject возвращает публикации с указанной темой.
func (b *fakeBus) bySubject(subject string) []bus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []bus.Message
	for _, m := range b.published {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// fakeCommitter — фиксация материалов без базы данных.
type fakeCommitter struct {
	mu        sync.Mutex
	createErr error
	updateErr error
	created   []*model.Material
	updated   []*model.Material
	tags      map[string][]string
	log       *eventLog
}

func newFakeCommitter(log *eventLog) *fakeCommitter {
	return &fakeCommitter{tags: make(map[string][]string), log: log}
}

func (c *fakeCommitter) CommitCreate(_ context.Context, m *model.Material, tags []string) error {
	if c.createErr != nil {
		return c.createErr
	}
	c.mu.Lock()
	c.created = append(c.created, m)
	c.tags[m.ID] = tags
	c.mu.Unlock()
	c.log.add("commit:create")
	return nil
}

func (c *fakeCommitter) CommitUpdate(_ context.Context, m *model.Material, tags []string) error {
	if c.updateErr != nil {
		return c.updateErr
	}
	c.mu.Lock()
	c.updated = append(c.updated, m)
	if tags != nil {
		c.tags[m.ID] = tags
	}
	c.mu.Unlock()
	c.log.add("commit:update")
	return nil
}

// fakeMaterials — in-memory репозиторий материалов.
type fakeMaterials struct {
	mu      sync.Mutex
	byID    map[string]*model.Material
	findErr error
}

func newFakeMaterials() *fakeMaterials {
	return &fakeMaterials{byID: make(map[string]*model.Material)}
}

func (r *fakeMaterials) Create(_ context.Context, m *model.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[m.ID] = m
	return nil
}

func (r *fakeMaterials) GetByID(_ context.Context, id string) (*model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMaterials) FindByFingerprint(_ context.Context, fp, excludeID string) (*model.Material, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byID {
		if m.Fingerprint == fp && m.Status == model.StatusActive && m.ID != excludeID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeMaterials) Update(_ context.Context, m *model.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[m.ID]; !ok {
		return repository.ErrNotFound
	}
	r.byID[m.ID] = m
	return nil
}

func (r *fakeMaterials) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok || m.Status == model.StatusDeleted {
		return repository.ErrNotFound
	}
	m.Status = model.StatusDeleted
	return nil
}

func (r *fakeMaterials) List(_ context.Context, _ repository.MaterialListFilters, _, _ int) ([]*model.Material, error) {
	return nil, nil
}

func (r *fakeMaterials) ListByUser(_ context.Context, userID string, _, _ int) ([]*model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Material
	for _, m := range r.byID {
		if m.UserID == userID && m.Status == model.StatusActive {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeMaterials) ListPopular(_ context.Context, _ int) ([]*model.Material, error) {
	return nil, nil
}

func (r *fakeMaterials) IncrementViews(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		m.Views++
		return nil
	}
	return repository.ErrNotFound
}

func (r *fakeMaterials) IncrementDownloads(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		m.Downloads++
		return nil
	}
	return repository.ErrNotFound
}

func (r *fakeMaterials) Count(_ context.Context, _ repository.MaterialListFilters) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID), nil
}

func (r *fakeMaterials) UserStats(_ context.Context, userID string) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var views, downloads int64
	for _, m := range r.byID {
		if m.UserID == userID && m.Status == model.StatusActive {
			views += m.Views
			downloads += m.Downloads
		}
	}
	return views, downloads, nil
}

func (r *fakeMaterials) ActiveLocators(_ context.Context) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locators := make(map[string]bool)
	for _, m := range r.byID {
		if m.Status == model.StatusActive {
			locators[m.Locator] = true
		}
	}
	return locators, nil
}

// --- Тестовая сборка оркестратора ---

type testPipeline struct {
	svc       *ValidationService
	materials *fakeMaterials
	committer *fakeCommitter
	store     *fakeStore
	bus       *fakeBus
	registry  *correlation.Registry
	log       *eventLog
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	log := &eventLog{}
	materials := newFakeMaterials()
	committer := newFakeCommitter(log)
	store := newFakeStore(log)
	fb := newFakeBus(log)
	registry := correlation.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		AnalysisQueue:     "material.process",
		VerdictQueue:      "material.responses",
		NotifyQueue:       "mail.delivery",
		ValidationTimeout: 200 * time.Millisecond,
	}

	notify := NewNotifyService(fb, cfg.NotifyQueue, logger)
	cache := NewCacheService(16, time.Minute)

	svc := NewValidationService(cfg, materials, committer, store, fb, registry, notify, cache, logger)
	return &testPipeline{
		svc:       svc,
		materials: materials,
		committer: committer,
		store:     store,
		bus:       fb,
		registry:  registry,
		log:       log,
	}
}

// respondValid настраивает фейковый анализатор на положительный вердикт.
func (tp *testPipeline) respondValid(tags []string, topic string) {
	tp.bus.onAnalysis = func(msg bus.Message) {
		tp.registry.Resolve(msg.CorrelationID, &model.Verdict{
			Valid: true,
			Tags:  tags,
			Topic: topic,
		})
	}
}

func uploadReq() *model.UploadRequest {
	return &model.UploadRequest{
		Data:             []byte("тестовое содержимое файла"),
		Title:            "Конспект по алгебре",
		Description:      "Линейные уравнения",
		Subject:          "математика",
		UserID:           "user-1",
		OriginalFilename: "algebra.pdf",
	}
}

func asPipelineErr(t *testing.T, err error, kind Kind) *PipelineError {
	t.Helper()
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("ожидали PipelineError, получили %T: %v", err, err)
	}
	if perr.Kind != kind {
		t.Fatalf("Kind = %q, ожидали %q", perr.Kind, kind)
	}
	return perr
}

// --- Тесты Submit ---

func TestSubmit_Committed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.respondValid([]string{"алгебра", "уравнения"}, "линейные уравнения")

	m, err := tp.svc.Submit(context.Background(), uploadReq())
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}

	if m.ID == "" {
		t.Error("ID материала не установлен")
	}
	if m.Status != model.StatusActive {
		t.Errorf("Status = %q, ожидали active", m.Status)
	}
	if m.Fingerprint == "" || len(m.Fingerprint) != 64 {
		t.Errorf("некорректный Fingerprint: %q", m.Fingerprint)
	}
	if !strings.Contains(m.URL, m.Locator) {
		t.Errorf("URL %q не содержит locator %q", m.URL, m.Locator)
	}

	// Staged-файл сохранён, не удалён компенсацией
	if tp.store.count() != 1 {
		t.Errorf("в хранилище %d объектов, ожидали 1", tp.store.count())
	}

	// Материал зафиксирован с объединёнными тегами
	if len(tp.committer.created) != 1 {
		t.Fatalf("зафиксировано %d материалов, ожидали 1", len(tp.committer.created))
	}
	gotTags := tp.committer.tags[m.ID]
	for _, want := range []string{"алгебра", "уравнения", "линейные уравнения", "математика"} {
		found := false
		for _, tag := range gotTags {
			if tag == want {
				found = true
			}
		}
		if !found {
			t.Errorf("тег %q отсутствует в %v", want, gotTags)
		}
	}

	// Порядок: публикация анализа → фиксация → подтверждение save
	analysisIdx := tp.log.indexOf("publish:" + SubjectAnalysis)
	commitIdx := tp.log.indexOf("commit:create")
	saveIdx := tp.log.indexOf("publish:" + SubjectSave)
	if analysisIdx == -1 || commitIdx == -1 || saveIdx == -1 {
		t.Fatalf("не все события произошли: %v", tp.log.list())
	}
	if !(analysisIdx < commitIdx && commitIdx < saveIdx) {
		t.Errorf("нарушен порядок событий: %v", tp.log.list())
	}

	// save отправлен с тем же correlation id
	saves := tp.bus.bySubject(SubjectSave)
	if len(saves) != 1 || saves[0].CorrelationID != m.ID {
		t.Errorf("подтверждение save: %+v, ожидали correlation id %s", saves, m.ID)
	}

	// Уведомление — fire-and-forget, ждём горутину
	deadline := time.Now().Add(time.Second)
	for len(tp.bus.bySubject("notify")) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(tp.bus.bySubject("notify")) != 1 {
		t.Error("уведомление не отправлено")
	}

	// Слот реестра снят
	if tp.registry.Len() != 0 {
		t.Errorf("в реестре %d слотов, ожидали 0", tp.registry.Len())
	}
}

func TestSubmit_Duplicate(t *testing.T) {
	tp := newTestPipeline(t)
	tp.respondValid(nil, "")

	// Первый материал проходит конвейер
	m1, err := tp.svc.Submit(context.Background(), uploadReq())
	if err != nil {
		t.Fatalf("первый Submit() ошибка: %v", err)
	}
	tp.materials.Create(context.Background(), m1)

	// Повторная загрузка того же содержимого — отказ без staging
	objectsBefore := tp.store.count()
	_, err = tp.svc.Submit(context.Background(), uploadReq())
	perr := asPipelineErr(t, err, KindDuplicate)
	if !strings.Contains(perr.Message, m1.ID) {
		t.Errorf("сообщение %q не содержит id существующего материала", perr.Message)
	}
	if tp.store.count() != objectsBefore {
		t.Error("дубликат не должен попадать в blob-хранилище")
	}
	if len(tp.bus.bySubject(SubjectAnalysis)) != 1 {
		t.Error("дубликат не должен публиковать запрос анализа")
	}
}

func TestSubmit_StagingFailed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.store.putErr = errors.New("диск переполнен")

	_, err := tp.svc.Submit(context.Background(), uploadReq())
	asPipelineErr(t, err, KindStaging)

	if len(tp.bus.bySubject(SubjectAnalysis)) != 0 {
		t.Error("при отказе staging запрос анализа не публикуется")
	}
	if tp.registry.Len() != 0 {
		t.Error("слот реестра не должен оставаться")
	}
}

func TestSubmit_DispatchFailed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.bus.failSubj[SubjectAnalysis] = errors.New("соединение с брокером потеряно")

	_, err := tp.svc.Submit(context.Background(), uploadReq())
	asPipelineErr(t, err, KindDispatch)

	// Компенсация: staged-файл удалён, слот снят
	if tp.store.count() != 0 {
		t.Error("staged-файл должен быть удалён при отказе публикации")
	}
	if tp.registry.Len() != 0 {
		t.Error("слот реестра должен быть снят")
	}
	if len(tp.committer.created) != 0 {
		t.Error("материал не должен фиксироваться")
	}
}

func TestSubmit_Rejected(t *testing.T) {
	tp := newTestPipeline(t)
	tp.bus.onAnalysis = func(msg bus.Message) {
		tp.registry.Resolve(msg.CorrelationID, &model.Verdict{
			Valid:  false,
			Reason: "не является учебным материалом",
		})
	}

	_, err := tp.svc.Submit(context.Background(), uploadReq())
	perr := asPipelineErr(t, err, KindRejected)
	if !strings.Contains(perr.Message, "не является учебным материалом") {
		t.Errorf("причина отклонения потеряна: %q", perr.Message)
	}

	if tp.store.count() != 0 {
		t.Error("staged-файл должен быть удалён при отклонении")
	}
	if len(tp.committer.created) != 0 {
		t.Error("отклонённый материал не должен фиксироваться")
	}
	if len(tp.bus.bySubject(SubjectSave)) != 0 {
		t.Error("подтверждение save не отправляется при отклонении")
	}
}

func TestSubmit_Timeout(t *testing.T) {
	tp := newTestPipeline(t)
	// Анализатор молчит
	var lateID string
	var mu sync.Mutex
	tp.bus.onAnalysis = func(msg bus.Message) {
		mu.Lock()
		lateID = msg.CorrelationID
		mu.Unlock()
	}

	start := time.Now()
	_, err := tp.svc.Submit(context.Background(), uploadReq())
	asPipelineErr(t, err, KindTimeout)

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("таймаут сработал слишком рано: %v", elapsed)
	}
	if tp.store.count() != 0 {
		t.Error("staged-файл должен быть удалён при таймауте")
	}
	if tp.registry.Len() != 0 {
		t.Error("слот реестра должен быть снят")
	}

	// Опоздавший вердикт отбрасывается
	mu.Lock()
	id := lateID
	mu.Unlock()
	if tp.registry.Resolve(id, &model.Verdict{Valid: true}) {
		t.Error("опоздавший вердикт должен быть отброшен")
	}
	if len(tp.committer.created) != 0 {
		t.Error("материал не должен фиксироваться после таймаута")
	}
}

func TestSubmit_CommitFailed(t *testing.T) {
	tp := newTestPipeline(t)
	tp.respondValid(nil, "")
	tp.committer.createErr = errors.New("база данных недоступна")

	_, err := tp.svc.Submit(context.Background(), uploadReq())
	asPipelineErr(t, err, KindCommit)

	if tp.store.count() != 0 {
		t.Error("staged-файл должен быть удалён при отказе фиксации")
	}
	if len(tp.bus.bySubject(SubjectSave)) != 0 {
		t.Error("подтверждение save не отправляется без фиксации")
	}
}

func TestSubmit_CommitConflict(t *testing.T) {
	tp := newTestPipeline(t)
	tp.respondValid(nil, "")
	tp.committer.createErr = fmt.Errorf("%w: гонка загрузок", repository.ErrConflict)

	_, err := tp.svc.Submit(context.Background(), uploadReq())
	asPipelineErr(t, err, KindDuplicate)

	if tp.store.count() != 0 {
		t.Error("staged-файл должен быть удалён при конфликте фиксации")
	}
}

func TestSubmit_ConcurrentFlows(t *testing.T) {
	tp := newTestPipeline(t)
	tp.respondValid(nil, "")

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := uploadReq()
			// У каждого запроса своё содержимое — дедупликация не мешает
			req.Data = []byte(fmt.Sprintf("содержимое %d", i))
			_, errs[i] = tp.svc.Submit(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Submit() %d ошибка: %v", i, err)
		}
	}
	if len(tp.committer.created) != n {
		t.Errorf("зафиксировано %d материалов, ожидали %d", len(tp.committer.created), n)
	}
	if tp.registry.Len() != 0 {
		t.Errorf("в реестре %d слотов, ожидали 0", tp.registry.Len())
	}
}

// --- Тесты Update ---

func seedMaterial(tp *testPipeline) *model.Material {
	m := &model.Material{
		ID:          "existing-id",
		Title:       "Старый конспект",
		UserID:      "user-1",
		URL:         "http://blobs.local/existing-id-old.pdf",
		Subject:     "математика",
		Fingerprint: strings.Repeat("a", 64),
		Extension:   "pdf",
		Locator:     "existing-id-old.pdf",
		Status:      model.StatusActive,
	}
	tp.materials.Create(context.Background(), m)
	tp.store.objects[m.Locator] = []byte("старое содержимое")
	return m
}

func TestUpdate_MetadataOnly(t *testing.T) {
	tp := newTestPipeline(t)
	m := seedMaterial(tp)

	got, err := tp.svc.Update(context.Background(), m.ID, &model.UpdateRequest{
		Title: "Новое название",
	})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if got.Title != "Новое название" {
		t.Errorf("Title = %q", got.Title)
	}
	// Поля без изменений сохраняются
	if got.Subject != "математика" {
		t.Errorf("Subject = %q, ожидали без изменений", got.Subject)
	}

	// Без шины и blob-хранилища
	if len(tp.bus.bySubject(SubjectAnalysis)) != 0 {
		t.Error("обновление метаданных не должно публиковать запрос анализа")
	}
	if len(tp.committer.updated) != 1 {
		t.Errorf("обновлений зафиксировано %d, ожидали 1", len(tp.committer.updated))
	}
}

func TestUpdate_WithFile(t *testing.T) {
	tp := newTestPipeline(t)
	m := seedMaterial(tp)
	tp.respondValid([]string{"физика"}, "")

	got, err := tp.svc.Update(context.Background(), m.ID, &model.UpdateRequest{
		Data:             []byte("новое содержимое"),
		OriginalFilename: "new.pdf",
	})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}

	if got.Locator == m.Locator {
		t.Error("locator должен измениться при замене файла")
	}
	if got.Fingerprint == m.Fingerprint {
		t.Error("отпечаток должен измениться при замене файла")
	}

	// Старый blob удалён, новый остался
	if _, ok := tp.store.objects[m.Locator]; ok {
		t.Error("старый blob должен быть удалён после фиксации")
	}
	if _, ok := tp.store.objects[got.Locator]; !ok {
		t.Error("новый blob должен существовать")
	}
	if len(tp.bus.bySubject(SubjectSave)) != 1 {
		t.Error("ожидали подтверждение save")
	}
}

func TestUpdate_WithFile_Rejected(t *testing.T) {
	tp := newTestPipeline(t)
	m := seedMaterial(tp)
	tp.bus.onAnalysis = func(msg bus.Message) {
		tp.registry.Resolve(msg.CorrelationID, &model.Verdict{Valid: false, Reason: "спам"})
	}

	_, err := tp.svc.Update(context.Background(), m.ID, &model.UpdateRequest{
		Data:             []byte("подозрительное содержимое"),
		OriginalFilename: "spam.pdf",
	})
	asPipelineErr(t, err, KindRejected)

	// Старый материал не тронут
	if _, ok := tp.store.objects[m.Locator]; !ok {
		t.Error("старый blob должен сохраниться при отклонении обновления")
	}
	cur, err := tp.materials.GetByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if cur.Locator != m.Locator || cur.Fingerprint != m.Fingerprint {
		t.Error("материал не должен измениться при отклонении обновления")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	tp := newTestPipeline(t)

	_, err := tp.svc.Update(context.Background(), "missing", &model.UpdateRequest{Title: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() = %v, ожидали ErrNotFound", err)
	}
}

// --- Тесты Delete ---

func TestDelete(t *testing.T) {
	tp := newTestPipeline(t)
	m := seedMaterial(tp)

	if err := tp.svc.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	cur, err := tp.materials.GetByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if cur.Status != model.StatusDeleted {
		t.Errorf("Status = %q, ожидали deleted", cur.Status)
	}
	if _, ok := tp.store.objects[m.Locator]; ok {
		t.Error("blob удалённого материала должен быть удалён")
	}

	// Повторное удаление — ErrNotFound
	if err := tp.svc.Delete(context.Background(), m.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный Delete() = %v, ожидали ErrNotFound", err)
	}
}

// --- Вспомогательные функции ---

func TestMergeTags(t *testing.T) {
	tests := []struct {
		name    string
		verdict *model.Verdict
		subject string
		want    []string
	}{
		{
			name:    "объединение с темой и предметом",
			verdict: &model.Verdict{Tags: []string{"алгебра"}, Topic: "уравнения"},
			subject: "математика",
			want:    []string{"алгебра", "уравнения", "математика"},
		},
		{
			name:    "дубликаты и регистр",
			verdict: &model.Verdict{Tags: []string{"Алгебра", "алгебра", " АЛГЕБРА "}},
			subject: "",
			want:    []string{"алгебра"},
		},
		{
			name:    "пустые значения отбрасываются",
			verdict: &model.Verdict{Tags: []string{"", "  "}},
			subject: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeTags(tt.verdict, tt.subject)
			if len(got) != len(tt.want) {
				t.Fatalf("mergeTags() = %v, ожидали %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("mergeTags()[%d] = %q, ожидали %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
