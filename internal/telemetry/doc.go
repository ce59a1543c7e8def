// Package telemetry обеспечивает наблюдаемость сервисов Nodeflow.
//
// Включает:
//   - logging.go: structured logging через slog
//   - tracing.go: OpenTelemetry трейсинг с экспортом по OTLP/HTTP
//
// Метрики объявляются рядом с кодом, который их считает (worker, api),
// через promauto и отдаются на /metrics.
package telemetry
