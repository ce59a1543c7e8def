// Package cli реализует командную строку nodeflow.
//
// CLI ходит в HTTP API и не импортирует внутренние пакеты сервера:
// формы ответов продублированы в client.go.
//
//	client := cli.NewClient("http://localhost:8080")
//	exec, err := client.StartExecution(ctx, workflowID, cli.StartExecutionRequest{})
//	detail, err := client.WaitExecution(ctx, exec.ID, time.Second)
//
// Запуск асинхронный: start возвращает ID сразу, а wait (или start --wait)
// опрашивает GET /executions/{id}, пока статус не станет completed или failed.
//
// Вывод: таблицы через text/tabwriter или JSON с флагом --json.
// Данные идут в stdout, сообщения в stderr, поэтому
// nodeflow workflow list --json | jq . работает.
//
// Группы команд:
//   - workflow: list, create, show, update, delete, validate
//   - execution: start, show, latest, list, wait
//   - integration: list, validate
//   - schedule: list, create, show, delete, enable, disable
//
// Фабрики (NewWorkflowCmd и т.д.) принимают clientFn и outputFn, чтобы
// Client и Output создавались после разбора PersistentFlags.
package cli
