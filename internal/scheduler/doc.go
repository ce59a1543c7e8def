// Package scheduler запускает workflows по расписанию.
//
// Каждый тик планировщик находит включённые schedules с наступившим
// next_due_at, создаёт для каждого pending execution и сдвигает
// next_due_at на следующее время (cron или интервал).
//
// Execution создаётся с ключом идемпотентности "{schedule_id}_{next_due_unix}",
// поэтому повторный тик после сбоя не создаст дубль.
//
// Несколько экземпляров безопасны: тикает только держатель Locker
// (repo.AdvisoryLock для PostgreSQL).
package scheduler
