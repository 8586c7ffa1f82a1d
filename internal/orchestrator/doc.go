// Package orchestrator выполняет сагу оформления ETC-устройств.
//
// Сага разбита точкой паузы на два сегмента:
//   - Start выполняет шаги 1..P и возвращает order_id, sign_order_id
//     и verify_code_no, после чего заявитель получает код подтверждения
//   - Resume принимает код и идентификаторы, восстанавливает контекст
//     и выполняет шаги P+1..N
//
// Каждый сегмент:
//  1. Проверяет параметры заявки
//  2. Захватывает область Guard (временная разблокировка дублей)
//  3. Выполняет шаги строго по порядку через Executor
//  4. Откатывает изменения Guard на любом выходе
//
// Executor ведёт шаг по состояниям PENDING → RUNNING → SUCCEEDED/FAILED.
// Падение критичного шага прерывает сегмент с *domain.FatalError,
// падение шага с continue_on_error только логируется.
package orchestrator
