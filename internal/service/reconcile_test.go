package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/edustore/material-module/internal/domain/model"
)

// fakeBlobLister — управляемое перечисление объектов для тестов сверки.
type fakeBlobLister struct {
	mu sync.Mutex
	// listed — локаторы, возвращаемые ListOlderThan
	listed []string
	// existing — локаторы, для которых Exists возвращает true
	existing map[string]bool
	// deleted — зафиксированные удаления
	deleted []string
	// block — если не nil, ListOlderThan блокируется до закрытия канала
	block chan struct{}
}

func (f *fakeBlobLister) ListOlderThan(_ time.Duration) ([]string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.listed))
	copy(out, f.listed)
	return out, nil
}

func (f *fakeBlobLister) Delete(_ context.Context, locator string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, locator)
	return true, nil
}

func (f *fakeBlobLister) Exists(_ context.Context, locator string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[locator], nil
}

func (f *fakeBlobLister) deletedLocators() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deleted))
	copy(out, f.deleted)
	return out
}

// newReconcileMaterials наполняет fakeMaterials материалами с указанными
// локаторами и статусами.
func newReconcileMaterials(t *testing.T, locators map[string]string) *fakeMaterials {
	t.Helper()
	materials := newFakeMaterials()
	i := 0
	for locator, status := range locators {
		i++
		m := &model.Material{
			ID:          locator, // уникальности достаточно
			Title:       "материал",
			UserID:      "user-1",
			Fingerprint: locator,
			Locator:     locator,
			Status:      status,
		}
		if err := materials.Create(context.Background(), m); err != nil {
			t.Fatalf("не удалось подготовить материал %d: %v", i, err)
		}
	}
	return materials
}

// TestReconcile_RemovesOrphans проверяет удаление объектов,
// на которые не ссылается ни один активный материал.
func TestReconcile_RemovesOrphans(t *testing.T) {
	materials := newReconcileMaterials(t, map[string]string{
		"kept.pdf":    model.StatusActive,
		"deleted.pdf": model.StatusDeleted,
	})
	lister := &fakeBlobLister{
		listed: []string{"kept.pdf", "deleted.pdf", "orphan.pdf"},
	}

	rs := NewReconcileService(materials, lister, time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	result, skipped := rs.RunOnce(context.Background())

	if skipped {
		t.Fatal("сверка не должна быть пропущена")
	}
	if result.BlobsChecked != 3 {
		t.Errorf("ожидалось 3 проверенных объекта, получено %d", result.BlobsChecked)
	}
	if result.OrphansRemoved != 2 {
		t.Errorf("ожидалось 2 удалённых сироты, получено %d", result.OrphansRemoved)
	}

	deleted := lister.deletedLocators()
	for _, locator := range deleted {
		if locator == "kept.pdf" {
			t.Error("объект активного материала не должен удаляться")
		}
	}
	if len(deleted) != 2 {
		t.Errorf("ожидалось 2 удаления, получено %v", deleted)
	}
}

// TestReconcile_MissingBlob проверяет фиксацию активных материалов
// без объекта в хранилище.
func TestReconcile_MissingBlob(t *testing.T) {
	materials := newReconcileMaterials(t, map[string]string{
		"present.pdf": model.StatusActive,
		"lost.pdf":    model.StatusActive,
		"fresh.pdf":   model.StatusActive,
	})
	// present.pdf в листинге; fresh.pdf моложе minAge, но существует;
	// lost.pdf отсутствует полностью
	lister := &fakeBlobLister{
		listed:   []string{"present.pdf"},
		existing: map[string]bool{"fresh.pdf": true},
	}

	rs := NewReconcileService(materials, lister, time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	result, skipped := rs.RunOnce(context.Background())

	if skipped {
		t.Fatal("сверка не должна быть пропущена")
	}
	if len(result.MissingBlobs) != 1 || result.MissingBlobs[0] != "lost.pdf" {
		t.Errorf("ожидался один потерянный объект lost.pdf, получено %v", result.MissingBlobs)
	}
	if result.OrphansRemoved != 0 {
		t.Errorf("удалений быть не должно, получено %d", result.OrphansRemoved)
	}
	if len(lister.deletedLocators()) != 0 {
		t.Errorf("удалений быть не должно, получено %v", lister.deletedLocators())
	}
}

// TestReconcile_ParallelRunSkipped проверяет, что параллельный запуск
// сверки пропускается.
func TestReconcile_ParallelRunSkipped(t *testing.T) {
	materials := newReconcileMaterials(t, nil)
	lister := &fakeBlobLister{block: make(chan struct{})}

	rs := NewReconcileService(materials, lister, time.Hour, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		rs.RunOnce(context.Background())
		close(done)
	}()

	// Дожидаемся входа первого запуска в сверку
	deadline := time.Now().Add(2 * time.Second)
	for !rs.IsInProgress() {
		if time.Now().After(deadline) {
			t.Fatal("первый запуск сверки не начался")
		}
		time.Sleep(5 * time.Millisecond)
	}

	result, skipped := rs.RunOnce(context.Background())
	if !skipped {
		t.Error("параллельный запуск должен быть пропущен")
	}
	if result != nil {
		t.Error("пропущенный запуск не должен возвращать результат")
	}

	close(lister.block)
	<-done

	if rs.IsInProgress() {
		t.Error("после завершения сверка не должна числиться выполняющейся")
	}
}
