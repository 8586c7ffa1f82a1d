// Package config читает конфигурацию сервисов Tollgate из переменных окружения.
//
// Load вызывается один раз в main; полученный *Config передаётся
// компонентам явно.
package config
