// Package steps содержит типизированные сборщики payload для шагов саги.
//
// # Обзор
//
// Каждый шаг плана по имени связан с функцией Builder, которая собирает
// payload удалённого вызова из параметров заявителя и контекста сессии:
//
//	type Builder func(in *Input) (map[string]any, error)
//
// Сборщик не ходит в сеть. Если предыдущий шаг не записал нужный
// идентификатор, возвращается ErrMissingContext, и шаг считается упавшим
// до вызова шлюза.
//
// # Registry и Table
//
//	registry := steps.DefaultRegistry()
//	table, err := registry.Bind(plan)   // индекс шага -> Builder
//	build, _ := table.For(step.Index)
//	payload, err := build(steps.NewInput(variant, params, sc))
//
// Registry.Has передаётся в engine.Validate, чтобы план с неизвестным
// шагом не загрузился.
//
// # Валидация параметров
//
// ValidateParameters проверяет обязательные поля варианта и формат
// телефона, номера удостоверения и банковской карты. Ошибка возвращается
// как *domain.FatalError класса validation.
//
// # Файлы пакета
//
//   - step.go: Builder, Input, ошибки
//   - registry.go: Registry и Table
//   - builders.go: сборщики шагов passenger/freight
//   - params.go: ValidateParameters
package steps
