// Package domain содержит доменные типы оркестратора mocap pipeline.
//
// Основные сущности:
//   - Task          — одна обработка видео (QUEUED → RUNNING → COMPLETED/FAILED)
//   - StepProgress  — прогресс шага pipeline (PENDING → RUNNING → COMPLETED/FAILED/SKIPPED)
//   - Options       — конфигурация pipeline для task
//   - TaskError     — классифицированная ошибка FAILED task
//
// Порядок шагов фиксирован:
//
//	tracking → track_extraction → smoothing → export → packaging
package domain
