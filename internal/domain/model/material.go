// Пакет model — доменные модели Material Module.
package model

import "time"

// Статусы материала.
const (
	// StatusActive — материал доступен для просмотра и скачивания.
	StatusActive = "active"
	// StatusDeleted — материал удалён (soft delete).
	StatusDeleted = "deleted"
)

// Material — учебный материал, прошедший валидацию и зафиксированный
// в базе данных. ID совпадает с correlation id, использованным при валидации.
type Material struct {
	// ID — UUID материала (correlation id запроса валидации)
	ID string `json:"id"`
	// Title — название материала
	Title string `json:"title"`
	// UserID — идентификатор пользователя-владельца
	UserID string `json:"user_id"`
	// URL — публичный URL файла в blob-хранилище
	URL string `json:"url"`
	// Description — описание материала (опционально)
	Description string `json:"description,omitempty"`
	// Subject — учебный предмет, заявленный при загрузке
	Subject string `json:"subject,omitempty"`
	// Views — количество просмотров
	Views int64 `json:"views"`
	// Downloads — количество скачиваний
	Downloads int64 `json:"downloads"`
	// Fingerprint — SHA-256 хэш содержимого файла (ключ дедупликации)
	Fingerprint string `json:"fingerprint"`
	// Extension — нормализованное расширение файла (без точки)
	Extension string `json:"extension"`
	// Locator — имя объекта в blob-хранилище
	Locator string `json:"locator"`
	// Status — статус материала (active, deleted)
	Status string `json:"status"`
	// Tags — теги материала (вывод анализатора + заявленный предмет)
	Tags []string `json:"tags,omitempty"`
	// CreatedAt — время фиксации материала
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag — нормализованная метка. Уникальна по имени, создаётся лениво
// при первом упоминании. Связь с материалами — many-to-many.
type Tag struct {
	// ID — числовой идентификатор тега
	ID int64 `json:"id"`
	// Name — уникальное имя тега
	Name string `json:"name"`
}

// UploadRequest — запрос на загрузку нового материала.
// Живёт только на время обработки, нигде не сохраняется.
type UploadRequest struct {
	// Data — содержимое файла
	Data []byte
	// Title — название материала
	Title string
	// Description — описание (опционально)
	Description string
	// Subject — учебный предмет
	Subject string
	// UserID — владелец материала
	UserID string
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
}

// UpdateRequest — запрос на обновление существующего материала.
// Если Data == nil, обновляются только метаданные — без обращения
// к шине сообщений и blob-хранилищу.
type UpdateRequest struct {
	// Data — новое содержимое файла (nil — файл не меняется)
	Data []byte
	// OriginalFilename — имя нового файла (используется при Data != nil)
	OriginalFilename string
	// Title — новое название (пустая строка — без изменений)
	Title string
	// Description — новое описание (пустая строка — без изменений)
	Description string
	// Subject — новый предмет (пустая строка — без изменений)
	Subject string
}

// Verdict — вердикт внешнего анализатора. Потребляется ровно один раз:
// сам вердикт не сохраняется, сохраняется только его эффект
// (фиксация материала или компенсация).
type Verdict struct {
	// Valid — признан ли материал допустимым
	Valid bool `json:"valid"`
	// Tags — выведенные анализатором теги
	Tags []string `json:"tags,omitempty"`
	// Topic — тема материала по мнению анализатора
	Topic string `json:"topic,omitempty"`
	// Subject — предмет материала по мнению анализатора
	Subject string `json:"subject,omitempty"`
	// Reason — причина отклонения (только при Valid == false)
	Reason string `json:"reason,omitempty"`
}

// Notification — уведомление о новом материале для сервиса рассылки.
// Отправляется fire-and-forget после фиксации материала.
type Notification struct {
	// Role — роль получателей уведомления
	Role string `json:"role"`
	// Template — шаблон письма
	Template string `json:"template"`
	// Summary — краткое описание события
	Summary string `json:"summary"`
	// Topic — тема материала
	Topic string `json:"topic,omitempty"`
	// Subject — предмет материала
	Subject string `json:"subject,omitempty"`
	// SendEmail — отправлять ли письмо
	SendEmail bool `json:"send_email"`
}

// AnalysisRequest — тело сообщения в очередь анализа.
type AnalysisRequest struct {
	// FileURL — URL файла в blob-хранилище
	FileURL string `json:"file_url"`
	// Filename — имя объекта (locator) в blob-хранилище
	Filename string `json:"filename"`
}
