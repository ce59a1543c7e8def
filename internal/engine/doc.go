// Package engine содержит модель графа workflow и чистые функции,
// на которые опирается выполнение.
//
// Включает:
//   - validate.go: структурная проверка графа (ссылки, ветки, циклы, достижимость)
//   - dag.go: построение DAG и детерминированный топологический порядок
//   - template.go: разрешение выражений {{$node.X.path}} и {{$vars.name}}
//   - condition.go: безопасный разбор условий branch_condition
//
// Engine не выполняет узлы и не обращается к хранилищу: этим заняты
// пакеты orchestrator и worker.
package engine
