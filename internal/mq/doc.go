// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Очередь в системе только ускоряет реакцию: источник истины о
// pending executions остаётся в БД, процессор опрашивает её и без брокера.
//
// Структура:
//   - connection.go: соединение с автоматическим reconnect
//   - topology.go: exchanges, очереди, привязки
//   - publisher.go: публикация сигналов и событий
//   - consumer.go: потребление с ручным ack
//
// Типы сообщений:
//   - execution.pending: создан execution, процессору пора проснуться
//   - execution.step: записан шаг (pending или итоговый)
//   - execution.finished: execution завершён
package mq
