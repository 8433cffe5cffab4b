// Package store — in-memory реестр tasks и их машина состояний.
//
// Store — единственный источник правды для статуса tasks:
//
//	QUEUED → RUNNING → {COMPLETED, FAILED}
//
// Все читатели получают глубокие копии (snapshot), поэтому запросы
// статуса не блокируются выполнением pipeline и никогда не видят
// частично записанный task. Прогресс шагов монотонен: шаг проходит
// PENDING → RUNNING → {COMPLETED, FAILED, SKIPPED} и не возвращается.
//
// Store реализует pipeline.Reporter.
package store
