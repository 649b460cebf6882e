// Пакет fingerprint — вычисление контентного отпечатка материала.
// Отпечаток (SHA-256 + нормализованное расширение) — ключ дедупликации:
// два файла с одинаковыми байтами всегда дают одинаковый отпечаток.
// Чистая функция, без I/O, стабильна между перезапусками и платформами.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// DefaultExtension — расширение по умолчанию, если имя файла
// отсутствует или не содержит расширения.
const DefaultExtension = "pdf"

// Fingerprint — контентный отпечаток файла.
type Fingerprint struct {
	// Hash — SHA-256 содержимого (lowercase hex, 64 символа)
	Hash string
	// Extension — нормализованное расширение без точки (lowercase)
	Extension string
}

// Compute вычисляет отпечаток содержимого и нормализованное расширение.
// Пустой вход — не ошибка: SHA-256 пустой строки детерминирован.
func Compute(data []byte, originalFilename string) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{
		Hash:      hex.EncodeToString(sum[:]),
		Extension: NormalizeExtension(originalFilename),
	}
}

// NormalizeExtension извлекает расширение из имени файла:
// lowercase, без ведущей точки. Если расширения нет — DefaultExtension.
func NormalizeExtension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return DefaultExtension
	}
	return strings.ToLower(ext)
}
