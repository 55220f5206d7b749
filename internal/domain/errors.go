package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается, когда запись отсутствует.
var ErrNotFound = errors.New("record not found")

// ErrValidation возвращается при некорректных входных данных.
var ErrValidation = errors.New("validation failed")

// GenerationParseError означает, что ответ модели не удалось разобрать.
// Сырой ответ сохраняется для диагностики.
type GenerationParseError struct {
	Raw string
	Err error
}

func (e *GenerationParseError) Error() string {
	if e.Err == nil {
		return "generation: no JSON found in response"
	}
	return fmt.Sprintf("generation: %v", e.Err)
}

func (e *GenerationParseError) Unwrap() error { return e.Err }
