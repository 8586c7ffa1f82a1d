// Package lock содержит короткоживущие блокировки в Redis.
//
// ResumeLock не даёт двум запросам одновременно выполнять resume
// одной заявки на подписание: второй запрос получает ErrHeld.
package lock
