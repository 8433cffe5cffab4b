// Package pipeline выполняет шаги обработки одного видео:
//
//	tracking → track_extraction → smoothing → export → packaging
//
// Каждый шаг описан типизированным дескриптором (TrackingStep,
// ExtractionStep, ...), который строит вызов внешнего инструмента.
// Runner запускает дескрипторы через Executor, проверяет созданные
// файлы и сообщает прогресс через Reporter.
//
// Ошибка шага smoothing при политике SmoothingSoft не прерывает
// pipeline: шаг помечается SKIPPED, export получает несглаженный трек.
// Все прочие ошибки фатальны.
package pipeline
