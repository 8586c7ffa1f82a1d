// Package guard снимает блокировку повторной заявки и гарантирует откат.
//
// # Guard
//
// Перед первым удалённым вызовом сегмента Guard ищет в общем хранилище
// записи выдачи, совпадающие с заявителем:
//
//	tier 1: телефон И номер удостоверения  -> confidence "high"
//	tier 2: номер ТС И имя владельца        -> confidence "medium"
//
// Записи, найденные в tier 1, во втором проходе не повторяются. Записи
// в заблокированных статусах отбрасывает само хранилище.
//
// Действующие записи (статус "1") временно переводятся в статус,
// разрешающий повторную заявку. Для каждой изменённой записи создаётся
// domain.UndoEntry с исходным статусом. Перед записью статуса UndoEntry
// пишется в журнал (write-ahead), чтобы sweeper мог восстановить запись
// после падения процесса.
//
// # Restorer
//
// Restorer проходит по списку отката ровно один раз: каждая запись
// без попытки восстановления получает исходный статус обратно.
// Ошибки восстановления логируются и никогда не поднимаются наружу.
//
// # Protect
//
// Protect объединяет всё в одну область: check, mutate, fn, restore.
// Restore выполняется на любом выходе из fn, включая panic.
package guard
