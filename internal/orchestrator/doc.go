// Package orchestrator — планировщик tasks на единственном GPU-слоте.
//
// Orchestrator отвечает за:
//   - Приём заявок (HTTP и очередь брокера) с backpressure через queue.Queue
//   - Единственный цикл, который берёт голову очереди, когда Slot свободен
//   - Запуск pipeline под общим лимитом времени task
//   - Терминальный переход task и cleanup при ошибке
//   - Загрузку итогового артефакта, журнал и события жизненного цикла
//
// Цикл не опрашивает очередь: он ждёт сигнала (новая заявка или
// освобождение слота). Паника внутри pipeline превращается в
// INTERNAL_ERROR, слот освобождается на любом пути выхода.
package orchestrator
