// Package cli реализует инструмент командной строки Tollgate.
//
// CLI работает с Tollgate API по HTTP и не импортирует внутренние
// пакеты системы.
//
// Client инкапсулирует запросы и разбор конверта ответа
// (data / error). Ошибка API возвращается как *APIError с кодом,
// сообщением и, если сессию прервал шаг, его индексом и именем.
//
//	client := cli.NewClient("http://localhost:8080")
//	res, err := client.Start(cli.StartRequest{Variant: "passenger", Params: params})
//
// Output печатает таблицы (text/tabwriter) или JSON с флагом --json.
// Данные идут в stdout, сообщения в stderr:
//
//	tollgate plan show freight --json | jq .
//
// Команды:
//   - apply: start, resume
//   - plan: show
//   - session: show
//
// Каждая группа создаётся фабрикой (NewApplyCmd и т.д.), принимающей
// clientFn и outputFn. Это замыкания, которые создают Client и Output
// после разбора PersistentFlags.
package cli
