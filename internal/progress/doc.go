// Package progress доставляет уведомления о ходе саги.
//
// Оркестратор на каждый сегмент создаёт Reporter. Reporter превращает
// вызовы Notify(percent, message) и Step(...) в Event и отдаёт их Sink.
// Ошибки Sink только логируются: прогресс никогда не влияет на сагу.
//
// Sink'и:
//   - LogSink пишет события в slog
//   - MQSink публикует события в RabbitMQ (exchange tollgate.progress)
//   - Hub рассылает события websocket-клиентам с фильтром по session_id
//   - Fanout раздаёт событие нескольким Sink
//   - Recorder запоминает события (тесты)
//
// Relay связывает consumer RabbitMQ с Hub: каждый экземпляр API получает
// события всех сессий и рассылает их своим клиентам.
package progress
