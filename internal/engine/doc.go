// Package engine содержит таблицу политик отказа (план саги).
//
// Включает:
//   - plan.go: упорядоченный план шагов, сегменты start/resume, проценты
//   - parser.go: парсинг плана из YAML и валидация
//   - loader.go: встроенные планы passenger/freight и переопределение из PLAN_DIR
//
// План загружается один раз при старте сервиса и дальше не меняется.
// Шаги выполняются строго по возрастанию индекса, без DAG и параллелизма.
package engine
