// Package executor запускает внешние инструменты pipeline как подпроцессы.
//
// Runner гарантирует, что после таймаута или отмены контекста
// не остаётся ни самого процесса, ни его потомков:
//
//  1. Процесс стартует лидером новой группы (Setpgid)
//  2. По таймауту группе посылается SIGTERM
//  3. Через GracePeriod — SIGKILL
//  4. Run возвращается только после подтверждённого завершения
//
// Результат различает три исхода: OutcomeExited (код выхода),
// OutcomeTimedOut и OutcomeCancelled. Решение о фатальности
// ненулевого кода принимает вызывающий.
package executor
