// Package recovery восстанавливает статусы записей, брошенные упавшими сессиями.
//
// Guard пишет запись отката в журнал до изменения статуса. Если процесс
// упал между изменением и откатом, запись остаётся pending. Sweeper по
// расписанию находит такие записи старше grace-периода и прогоняет их
// через тот же Restorer, что и обычная сессия.
package recovery
