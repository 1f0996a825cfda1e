package models

import (
	"testing"
	"time"
)

func TestSongCloneReturnsIndependentCopy(t *testing.T) {
	s := &Song{ID: "song-1", Title: "original"}
	cp := s.Clone()

	cp.Title = "changed"

	if s.Title != "original" {
		t.Fatalf("expected the original to be unaffected, got %q", s.Title)
	}
	if cp.ID != "song-1" {
		t.Fatalf("expected the clone to carry over the id, got %q", cp.ID)
	}
}

func TestSongCloneOfNilReturnsNil(t *testing.T) {
	var s *Song
	if got := s.Clone(); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestEffectivePositionAddsElapsedTimeWhilePlaying(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)
	p := &PlaybackState{Position: 10, IsPlaying: true, StartedAt: &start}

	got := p.EffectivePosition(start.Add(5 * time.Second))
	if got < 14.9 || got > 15.1 {
		t.Fatalf("expected ~15s, got %v", got)
	}
}

func TestEffectivePositionHoldsStillWhenPaused(t *testing.T) {
	p := &PlaybackState{Position: 42, IsPlaying: false}
	if got := p.EffectivePosition(time.Now()); got != 42 {
		t.Fatalf("expected the stored position when paused, got %v", got)
	}
}

func TestEffectivePositionOfNilReturnsZero(t *testing.T) {
	var p *PlaybackState
	if got := p.EffectivePosition(time.Now()); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
