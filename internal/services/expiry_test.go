package services

import (
	"testing"
	"time"
)

func TestRetentionCoversSessionWindowPlusBuffer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(time.Hour)

	got := RetentionSeconds(start, 60, time.Hour, now)

	// 3600s until start + 60s duration term + 3600s buffer.
	if got != 7260 {
		t.Fatalf("expected 7260 seconds, got %d", got)
	}
}

func TestRetentionClampsToOneSecond(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(-48 * time.Hour)

	got := RetentionSeconds(start, 30, time.Hour, now)

	if got != 1 {
		t.Fatalf("expected clamped retention of 1 second, got %d", got)
	}
}

func TestRetentionFloorsPartialSeconds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(1500 * time.Millisecond)

	got := RetentionSeconds(start, 0, 0, now)

	if got != 1 {
		t.Fatalf("expected floored retention of 1 second, got %d", got)
	}
}

func TestRetentionNegativeDurationTreatedAsZero(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	start := now.Add(10 * time.Second)

	got := RetentionSeconds(start, -90, 0, now)

	if got != 10 {
		t.Fatalf("expected 10 seconds, got %d", got)
	}
}
