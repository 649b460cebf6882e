// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — материал не найден.
	ErrNotFound = errors.New("материал не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// Kind — категория отказа конвейера валидации. Каждая категория
// однозначно отображается на HTTP-статус в слое handlers.
type Kind string

const (
	// KindDuplicate — материал с таким отпечатком уже существует.
	KindDuplicate Kind = "duplicate"
	// KindStaging — ошибка записи файла в blob-хранилище.
	KindStaging Kind = "staging"
	// KindDispatch — ошибка публикации запроса анализа в шину.
	KindDispatch Kind = "dispatch"
	// KindRejected — анализатор отклонил материал.
	KindRejected Kind = "rejected"
	// KindTimeout — вердикт не получен за отведённое время.
	KindTimeout Kind = "timeout"
	// KindCommit — ошибка фиксации метаданных в базе данных.
	KindCommit Kind = "commit"
)

// PipelineError — отказ конвейера валидации с категорией.
// К моменту возврата ошибки все компенсации уже выполнены:
// промежуточные артефакты (blob, слот реестра) сняты.
type PipelineError struct {
	// Kind — категория отказа
	Kind Kind
	// Message — человекочитаемое описание
	Message string
	// Err — исходная ошибка (опционально)
	Err error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// pipelineErr — конструктор PipelineError.
func pipelineErr(kind Kind, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: message, Err: err}
}
