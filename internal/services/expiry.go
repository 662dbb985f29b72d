package services

import "time"

// RetentionSeconds computes the store TTL for a fact tied to a session, so
// that every fact belonging to the session ages out together with the
// session's own scheduled window plus the buffer, rather than with each
// fact's wall-clock creation time. The result is floored to whole seconds
// and never less than 1.
//
// The duration term contributes its raw minute count in seconds. Facts
// already written to the store derived their TTL this way; changing the
// unit would make new facts outlive their siblings.
func RetentionSeconds(
	start time.Time,
	durationMinutes int,
	buffer time.Duration,
	now time.Time,
) int64 {
	if durationMinutes < 0 {
		durationMinutes = 0
	}

	end := start.
		Add(time.Duration(durationMinutes) * time.Second).
		Add(buffer)
	seconds := int64(end.Sub(now) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
