package engine

import "errors"

// Ошибки валидации плана.
var (
	// ErrEmptySteps: план не содержит шагов.
	ErrEmptySteps = errors.New("plan has no steps")

	// ErrEmptyStepName: шаг без имени.
	ErrEmptyStepName = errors.New("step has empty name")

	// ErrDuplicateStepName: несколько шагов с одинаковым именем.
	ErrDuplicateStepName = errors.New("duplicate step name")

	// ErrIndexGap: индексы шагов не идут подряд от 1.
	ErrIndexGap = errors.New("step indices must be 1..N without gaps")

	// ErrConflictingPolicy: шаг одновременно critical и continue_on_error.
	ErrConflictingPolicy = errors.New("step cannot be both critical and continue_on_error")

	// ErrNegativeRetry: отрицательный retry_count.
	ErrNegativeRetry = errors.New("retry_count must be >= 0")

	// ErrPausePoint: в плане нет точки паузы или их несколько.
	ErrPausePoint = errors.New("plan must have exactly one pause_after step")

	// ErrPauseNotCritical: шаг точки паузы должен быть критичным.
	ErrPauseNotCritical = errors.New("pause_after step must be critical")

	// ErrUnknownStep: для имени шага нет сборщика payload.
	ErrUnknownStep = errors.New("unknown step name")

	// ErrVariantMismatch: вариант в файле не совпадает с запрошенным.
	ErrVariantMismatch = errors.New("plan variant mismatch")
)

// Ошибки загрузки.
var (
	// ErrPlanNotFound: для варианта нет плана.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrPlanParse: файл плана не распарсился.
	ErrPlanParse = errors.New("plan parse failed")
)

// ValidationError: ошибка валидации с контекстом.
type ValidationError struct {
	Index   int    // индекс шага, где произошла ошибка
	Step    string // имя шага
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step != "" {
		return "step " + e.Step + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(index int, step, field, message string, err error) *ValidationError {
	return &ValidationError{
		Index:   index,
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
