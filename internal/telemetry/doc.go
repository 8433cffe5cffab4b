// Package telemetry обеспечивает наблюдаемость оркестратора.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики (очередь, GPU слот, шаги, cleanup, HTTP, приём из брокера)
//   - tracing.go — OpenTelemetry спаны для task и шагов pipeline
//
// Все бинарники используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
