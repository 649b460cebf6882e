// diskstore.go — дисковая реализация объектного хранилища.
// Паттерн записи: temp файл → запись → fsync → atomic rename.
// Content-Type выводится из расширения объекта при чтении.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore — хранение объектов в локальной директории.
type DiskStore struct {
	// dataDir — корневая директория хранения (MM_BLOB_DIR)
	dataDir string
	// publicURL — базовый URL для построения публичных ссылок
	publicURL string
}

// NewDiskStore создаёт дисковое хранилище. Директория создаётся,
// если не существует.
func NewDiskStore(dataDir, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &DiskStore{
		dataDir:   dataDir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Put записывает объект на диск и возвращает его публичный URL.
func (s *DiskStore) Put(_ context.Context, locator string, data []byte, _ string) (string, error) {
	fullPath := filepath.Join(s.dataDir, locator)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return s.URL(locator), nil
}

// Exists проверяет существование объекта на диске.
func (s *DiskStore) Exists(_ context.Context, locator string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dataDir, locator))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки объекта %s: %w", locator, err)
	}
	return true, nil
}

// Open открывает объект для потокового чтения.
// Content-Type выводится из расширения имени объекта.
func (s *DiskStore) Open(_ context.Context, locator string) (io.ReadCloser, string, error) {
	f, err := os.Open(filepath.Join(s.dataDir, locator))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("объект не найден: %s", locator)
		}
		return nil, "", fmt.Errorf("ошибка открытия объекта %s: %w", locator, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(locator))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

// Delete удаляет объект с диска. Отсутствующий объект — не ошибка.
func (s *DiskStore) Delete(_ context.Context, locator string) (bool, error) {
	err := os.Remove(filepath.Join(s.dataDir, locator))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка удаления объекта %s: %w", locator, err)
	}
	return true, nil
}

// ListOlderThan возвращает локаторы объектов, изменённых раньше,
// чем now-minAge. Временные файлы и скрытые файлы пропускаются.
// Используется фоновой сверкой: свежие объекты могут принадлежать
// незавершённым валидациям.
func (s *DiskStore) ListOlderThan(minAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	cutoff := time.Now().Add(-minAge)
	var locators []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			locators = append(locators, name)
		}
	}

	return locators, nil
}

// URL возвращает публичный URL объекта.
func (s *DiskStore) URL(locator string) string {
	return s.publicURL + "/" + locator
}
