// Package gateway выполняет именованные удалённые операции контрагента.
//
// Gateway принимает имя операции и payload, возвращает ответ шлюза.
// Ответ считается успешным, только если поле-дискриминант
// (по умолчанию "code") равно значению-сигналу успеха (по умолчанию "0").
//
// Ошибки делятся на два класса:
//   - ErrTransport: сеть, таймаут, HTTP статус не 2xx, тело не JSON
//   - ErrRejected: контрагент ответил, но дискриминант не равен сигналу успеха
//
// Повторять имеет смысл только ErrTransport.
//
// Реализации:
//   - HTTPGateway подписывает запрос HMAC-SHA256 и ходит по HTTP
//   - Sandbox отвечает успехом со сгенерированными идентификаторами,
//     поддерживает заданные заранее отказы для тестов и локальной разработки
package gateway
