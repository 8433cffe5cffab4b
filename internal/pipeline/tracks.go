package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TrackStat — число кадров, в которых присутствует трек.
type TrackStat struct {
	ID     int
	Frames int
}

// ParseTrackListing разбирает вывод инструмента списка треков:
//
//	tid,frame_count
//	2,95
//	1,50
//	---
//	{"total_tids": 2, ...}
//
// Всё после строки "---" игнорируется. "No tids found." — пустой список.
func ParseTrackListing(r io.Reader) ([]TrackStat, error) {
	var stats []TrackStat

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "---":
			return stats, nil
		case strings.HasPrefix(line, "tid,"):
			continue
		case strings.HasPrefix(strings.ToLower(line), "no tids"):
			return nil, nil
		}

		idStr, framesStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedListing, line)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("%w: track id %q", ErrMalformedListing, idStr)
		}
		frames, err := strconv.Atoi(strings.TrimSpace(framesStr))
		if err != nil {
			return nil, fmt.Errorf("%w: frame count %q", ErrMalformedListing, framesStr)
		}
		stats = append(stats, TrackStat{ID: id, Frames: frames})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read track listing: %w", err)
	}
	return stats, nil
}

// SelectTrack выбирает трек с наибольшим числом кадров.
// При равенстве побеждает меньший идентификатор.
func SelectTrack(stats []TrackStat) (int, error) {
	best := -1
	bestFrames := -1
	for _, s := range stats {
		if s.Frames <= 0 {
			continue
		}
		if s.Frames > bestFrames || (s.Frames == bestFrames && s.ID < best) {
			best, bestFrames = s.ID, s.Frames
		}
	}
	if best < 0 {
		return 0, ErrNoTracks
	}
	return best, nil
}
