// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go: structured logging через slog, логгер в context.Context
//   - metrics.go: Prometheus метрики шагов, сессий, Guard и восстановления
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
