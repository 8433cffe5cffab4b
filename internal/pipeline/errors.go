package pipeline

import "errors"

// Ошибки pipeline.
var (
	// ErrUnknownPolicy — неизвестная политика smoothing.
	ErrUnknownPolicy = errors.New("unknown smoothing policy")

	// ErrToolUnavailable — внешний инструмент или его данные недоступны.
	ErrToolUnavailable = errors.New("tool unavailable")

	// ErrNoTracks — в выводе трекинга нет ни одного трека.
	ErrNoTracks = errors.New("no tracks found")

	// ErrMalformedListing — вывод инструмента списка треков не распознан.
	ErrMalformedListing = errors.New("malformed track listing")
)
