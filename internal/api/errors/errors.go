// Пакет errors — конструкторы стандартных ошибок в формате Edustore.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	"net/http"
)

// Коды ошибок Material Module.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeDuplicateMaterial = "DUPLICATE_MATERIAL"
	CodeMaterialRejected  = "MATERIAL_REJECTED"
	CodeValidationTimeout = "VALIDATION_TIMEOUT"
	CodeStagingFailed     = "STAGING_FAILED"
	CodeDispatchFailed    = "DISPATCH_FAILED"
	CodeCommitFailed      = "COMMIT_FAILED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате Edustore.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// DuplicateMaterial — 409 материал с таким содержимым уже существует.
func DuplicateMaterial(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeDuplicateMaterial, message)
}

// MaterialRejected — 422 анализатор отклонил материал.
func MaterialRejected(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeMaterialRejected, message)
}

// ValidationTimeout — 504 анализатор не ответил за отведённое время.
func ValidationTimeout(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGatewayTimeout, CodeValidationTimeout, message)
}

// StagingFailed — 500 ошибка записи файла в хранилище.
func StagingFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeStagingFailed, message)
}

// DispatchFailed — 500 ошибка отправки запроса анализа.
func DispatchFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeDispatchFailed, message)
}

// CommitFailed — 500 ошибка фиксации метаданных.
func CommitFailed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeCommitFailed, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
