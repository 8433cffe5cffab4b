// Package mq — интеграция с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим переподключением
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация событий и заявок
//   - consumer.go   — потребление очереди заявок
//
// События (exchange mocap.events, topic):
//   - task.queued    — task принят в очередь
//   - task.started   — task занял GPU-слот
//   - task.completed — task завершён успешно
//   - task.failed    — task завершён с ошибкой
//   - task.rejected  — заявка отклонена (очередь полна или невалидна)
//
// Приём заявок: exchange mocap.intake → очередь mocap.submissions
// (сообщение task.submit). Невалидные заявки уходят в mocap.dlq.submissions.
package mq
