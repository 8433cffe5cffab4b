// Package queue — ограниченная очередь допуска tasks.
//
// Push отклоняет task с ErrQueueFull, когда длина достигла ёмкости.
// Это единственный механизм backpressure перед эксклюзивным GPU-слотом.
package queue
