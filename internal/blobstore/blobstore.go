// Пакет blobstore — объектное хранилище загруженных файлов.
//
// Файл попадает в хранилище до того, как известен исход валидации
// (staging): при положительном вердикте объект остаётся постоянным
// местом хранения материала, при любом отказе — удаляется компенсацией.
package blobstore

import (
	"context"
	"io"
	"regexp"
)

// Store — контракт объектного хранилища.
type Store interface {
	// Put сохраняет объект и возвращает его публичный URL.
	Put(ctx context.Context, locator string, data []byte, contentType string) (string, error)
	// Exists проверяет существование объекта.
	Exists(ctx context.Context, locator string) (bool, error)
	// Open открывает объект для потокового чтения.
	// Вызывающий код обязан закрыть ReadCloser.
	Open(ctx context.Context, locator string) (io.ReadCloser, string, error)
	// Delete удаляет объект. Возвращает false без ошибки,
	// если объект уже не существует.
	Delete(ctx context.Context, locator string) (bool, error)
}

// locatorUnsafe — символы, недопустимые в имени объекта.
var locatorUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// MakeLocator строит имя объекта из correlation id и оригинального
// имени файла: {correlationId}-{filename} с заменой недопустимых
// символов на подчёркивание.
func MakeLocator(correlationID, originalFilename string) string {
	if originalFilename == "" {
		originalFilename = "file.pdf"
	}
	return locatorUnsafe.ReplaceAllString(correlationID+"-"+originalFilename, "_")
}
