// Package mq предоставляет инфраструктуру RabbitMQ для событий прогресса.
//
// Структура:
//   - connection.go: соединение с переподключением
//   - topology.go: обменник tollgate.progress и очередь слушателя
//   - publisher.go: публикация событий
//   - consumer.go: потребление с повторной подпиской после reconnect
//
// Каждый экземпляр API держит свою эксклюзивную очередь, поэтому
// websocket-клиент видит прогресс сессии независимо от того,
// какой экземпляр её выполняет.
package mq
