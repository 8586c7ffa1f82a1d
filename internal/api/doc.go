// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go             Handler с зависимостями (оркестратор, журнал сессий, hub)
//   - routes.go              регистрация маршрутов
//   - middleware.go          middleware (logging, recovery, metrics)
//   - response.go            JSON-ответы и отображение ошибок саги в HTTP
//   - dto.go                 запросы и ответы
//   - application_handler.go /applications и /plans
//   - session_handler.go     /sessions и websocket /progress
package api
