// Package repo — опциональный слой Postgres на pgx.
//
// TaskJournal хранит snapshot каждого task (аудит и история) и после
// рестарта помечает прерванные tasks как FAILED. InstanceLock не даёт
// двум экземплярам mocapd работать с одним work root.
//
// Источником правды о текущих tasks остаётся in-memory store.
package repo
