// Package orchestrator выполняет один execution одного workflow.
//
// Scheduler проходит узлы в топологическом порядке строго по одному:
//   - разрешает выражения конфигурации (bare режим)
//   - вызывает интеграцию из steps.Registry
//   - сохраняет pending и итоговый шаг через StepSink
//   - отсекает невыбранные ветки branch_condition
//   - блокирует потомков упавшего узла, не трогая независимые ветки
//
// Хранение, захват execution и таймауты находятся в пакете worker.
package orchestrator
