// Package api содержит HTTP API статуса и приёма tasks.
//
// Структура:
//   - handler.go      — Handler с DI (оркестратор, cleanup, журнал, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — middleware (logging, recovery)
//   - response.go     — унифицированные JSON-ответы и обработка ошибок
//   - dto.go          — Data Transfer Objects (request/response)
//   - task_handler.go — обработчики для /tasks, /queue, /stats, /admin
//
// API не проверяет само видео: video_path должен указывать на уже
// проверенный и сохранённый файл.
package api
