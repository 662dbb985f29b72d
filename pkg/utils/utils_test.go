package utils

import (
	"strings"
	"testing"
)

func TestDeriveRoomIsDeterministic(t *testing.T) {
	roomID, joinURL := DeriveRoom("sess-123", "https://meet.example.com")
	againID, againURL := DeriveRoom("sess-123", "https://meet.example.com")

	if roomID != againID || joinURL != againURL {
		t.Fatalf("expected stable derivation, got %s/%s then %s/%s", roomID, joinURL, againID, againURL)
	}
	if !strings.HasPrefix(joinURL, "https://meet.example.com/rooms/") {
		t.Fatalf("unexpected join url %s", joinURL)
	}
	if !strings.HasSuffix(joinURL, roomID) {
		t.Fatalf("join url %s does not reference room %s", joinURL, roomID)
	}
}

func TestDeriveRoomDistinctPerSession(t *testing.T) {
	first, _ := DeriveRoom("sess-123", "https://meet.example.com")
	second, _ := DeriveRoom("sess-124", "https://meet.example.com")

	if first == second {
		t.Fatalf("expected distinct rooms, both %s", first)
	}
}

func TestDeriveRoomDoesNotExposeSessionID(t *testing.T) {
	roomID, joinURL := DeriveRoom("sess-123", "https://meet.example.com/")

	if strings.Contains(roomID, "sess-123") || strings.Contains(joinURL, "sess-123") {
		t.Fatal("room derivation must not leak the session id")
	}
	if len(roomID) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(roomID))
	}
	if strings.Contains(joinURL, "//rooms") {
		t.Fatalf("trailing slash not normalized: %s", joinURL)
	}
}
