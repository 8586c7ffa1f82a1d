package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Parse парсит план из YAML.
//
// Шаги сортируются не здесь: порядок в файле должен совпадать с индексами,
// это проверяет Validate.
func Parse(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanParse, err)
	}
	return &plan, nil
}

// Validate выполняет полную валидацию плана.
//
// Проверяет:
// - Наличие шагов
// - Индексы 1..N в порядке файла, без пропусков
// - Уникальность имён
// - Непротиворечивость политики (critical vs continue_on_error)
// - Ровно одну критичную точку паузы
// - Наличие сборщика payload для каждого имени (если передан known)
func Validate(plan *Plan, known func(name string) bool) error {
	if plan == nil || len(plan.Steps) == 0 {
		return ErrEmptySteps
	}

	names := make(map[string]bool, len(plan.Steps))
	pauses := 0

	for i := range plan.Steps {
		step := &plan.Steps[i]

		if err := ValidateStep(step, i+1, names); err != nil {
			return err
		}

		if known != nil && !known(step.Name) {
			return NewValidationError(step.Index, step.Name, "name",
				fmt.Sprintf("no payload builder for step %q", step.Name), ErrUnknownStep)
		}

		if step.PauseAfter {
			pauses++
			if !step.AbortsOnFailure() {
				return NewValidationError(step.Index, step.Name, "pause_after",
					"pause step must abort on failure", ErrPauseNotCritical)
			}
		}
	}

	if pauses != 1 {
		return NewValidationError(0, "", "pause_after",
			fmt.Sprintf("found %d pause_after steps", pauses), ErrPausePoint)
	}

	return nil
}

// ValidateStep валидирует один шаг.
// expected задаёт ожидаемый индекс, names хранит уже встреченные имена.
func ValidateStep(step *domain.StepDef, expected int, names map[string]bool) error {
	if step.Name == "" {
		return NewValidationError(step.Index, "", "name", "step has empty name", ErrEmptyStepName)
	}

	if names[step.Name] {
		return NewValidationError(step.Index, step.Name, "name",
			fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
	}
	names[step.Name] = true

	if step.Index != expected {
		return NewValidationError(step.Index, step.Name, "index",
			fmt.Sprintf("expected index %d, got %d", expected, step.Index), ErrIndexGap)
	}

	if step.Critical && step.ContinueOnError {
		return NewValidationError(step.Index, step.Name, "continue_on_error",
			"step is both critical and continue_on_error", ErrConflictingPolicy)
	}

	if step.RetryCount < 0 {
		return NewValidationError(step.Index, step.Name, "retry_count",
			fmt.Sprintf("retry_count is %d", step.RetryCount), ErrNegativeRetry)
	}

	return nil
}
