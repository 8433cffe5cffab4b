package pipeline

import (
	"errors"
	"strings"
	"testing"
)

// --- ParseTrackListing Tests ---

func TestParseTrackListing(t *testing.T) {
	input := "tid,frame_count\n2,95\n1,50\n---\n{\"total_tids\": 2, \"max_frames\": 95}\n"

	stats, err := ParseTrackListing(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(stats))
	}
	if stats[0] != (TrackStat{ID: 2, Frames: 95}) {
		t.Errorf("unexpected first track: %+v", stats[0])
	}
	if stats[1] != (TrackStat{ID: 1, Frames: 50}) {
		t.Errorf("unexpected second track: %+v", stats[1])
	}
}

func TestParseTrackListing_NoTracks(t *testing.T) {
	stats, err := ParseTrackListing(strings.NewReader("No tids found.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("expected no tracks, got %v", stats)
	}
}

func TestParseTrackListing_Malformed(t *testing.T) {
	_, err := ParseTrackListing(strings.NewReader("tid,frame_count\nabc,10\n"))
	if !errors.Is(err, ErrMalformedListing) {
		t.Errorf("expected ErrMalformedListing, got %v", err)
	}

	_, err = ParseTrackListing(strings.NewReader("garbage\n"))
	if !errors.Is(err, ErrMalformedListing) {
		t.Errorf("expected ErrMalformedListing, got %v", err)
	}
}

// --- SelectTrack Tests ---

func TestSelectTrack(t *testing.T) {
	tests := []struct {
		name  string
		stats []TrackStat
		want  int
	}{
		{"single", []TrackStat{{ID: 4, Frames: 10}}, 4},
		{"longest wins", []TrackStat{{ID: 1, Frames: 50}, {ID: 2, Frames: 95}}, 2},
		{"tie lowest id", []TrackStat{{ID: 7, Frames: 30}, {ID: 3, Frames: 30}}, 3},
		{"zero frames ignored", []TrackStat{{ID: 0, Frames: 0}, {ID: 5, Frames: 1}}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectTrack(tt.stats)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected track %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSelectTrack_Empty(t *testing.T) {
	if _, err := SelectTrack(nil); !errors.Is(err, ErrNoTracks) {
		t.Errorf("expected ErrNoTracks, got %v", err)
	}
	if _, err := SelectTrack([]TrackStat{{ID: 1, Frames: 0}}); !errors.Is(err, ErrNoTracks) {
		t.Errorf("expected ErrNoTracks for empty tracks, got %v", err)
	}
}
