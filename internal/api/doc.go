// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go: Handler с зависимостями (хранилища, реестр, notifier)
//   - routes.go: регистрация маршрутов
//   - middleware.go: logging, recovery, prometheus метрики
//   - response.go: конверт {data} / {error:{code,message}}, разбор запроса
//   - dto.go: request/response структуры с тегами validate
//   - workflow_handler.go: /workflows
//   - execution_handler.go: запуск и опрос executions
//   - integration_handler.go: /integrations
//   - schedule_handler.go: /schedules
//
// Запуск не ждёт выполнения: POST /workflows/{id}/executions отвечает 202,
// а клиент опрашивает GET /executions/{id}.
package api
