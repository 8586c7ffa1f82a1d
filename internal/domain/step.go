package domain

import (
	"fmt"
	"time"
)

// StepDef описывает один шаг саги и его политику отказа.
//
// Набор StepDef статичен и загружается один раз для каждого Variant.
// Index идёт от 1 до N без пропусков.
type StepDef struct {
	// Index задаёт порядковый номер шага (1..N).
	Index int `json:"index" yaml:"index"`

	// Name задаёт имя шага, по нему выбирается сборщик payload.
	Name string `json:"name" yaml:"name"`

	// Operation задаёт имя удалённой операции шлюза.
	// Если пусто, используется Name.
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty"`

	// Title задаёт человекочитаемое название для прогресса.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Critical: падение шага прерывает всю сессию.
	Critical bool `json:"critical" yaml:"critical"`

	// ContinueOnError: падение шага логируется, сага идёт дальше.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`

	// RetryCount задаёт число повторов при транспортных ошибках.
	// Используется только при включённых retry (STEP_RETRY_ENABLED).
	RetryCount int `json:"retry_count" yaml:"retry_count"`

	// PauseAfter отмечает точку паузы: после шага сага ждёт код подтверждения.
	PauseAfter bool `json:"pause_after,omitempty" yaml:"pause_after,omitempty"`
}

// OperationName возвращает имя удалённой операции.
func (s StepDef) OperationName() string {
	if s.Operation != "" {
		return s.Operation
	}
	return s.Name
}

// Label возвращает "<index>. <name>" для сообщений прогресса.
func (s StepDef) Label() string {
	name := s.Title
	if name == "" {
		name = s.Name
	}
	return fmt.Sprintf("%d. %s", s.Index, name)
}

// AbortsOnFailure сообщает, прерывает ли падение шага сессию.
// Проглатываются только шаги с явным continue_on_error.
func (s StepDef) AbortsOnFailure() bool {
	return s.Critical || !s.ContinueOnError
}

// StepResult содержит итог выполнения одного шага.
// Живёт до конца обработки шага.
type StepResult struct {
	// Step задаёт выполненный шаг.
	Step StepDef

	// Succeeded: true, если шлюз вернул признак успеха.
	Succeeded bool

	// Response содержит данные ответа шлюза.
	Response map[string]any

	// ErrorMessage содержит причину отказа.
	ErrorMessage string

	// Err содержит исходную ошибку (транспорт, отказ, сборка payload).
	Err error

	// Attempts задаёт число выполненных попыток.
	Attempts int

	// Added перечисляет поля контекста, записанные этим шагом.
	Added []Field

	// Duration задаёт длительность шага.
	Duration time.Duration
}

// Status возвращает финальный статус шага.
func (r *StepResult) Status() StepStatus {
	if r.Succeeded {
		return StepStatusSucceeded
	}
	return StepStatusFailed
}
