package models

import "time"

// Session statuses. Pending is the initial state; declined is terminal;
// in-progress and completed are reached outside this engine and are never
// regressed by projection.
const (
	StatusPending    = "pending"
	StatusScheduled  = "scheduled"
	StatusDeclined   = "declined"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// PaymentTerms are the payment expectations recorded on the original
// request. Reference carries a payment reference embedded at creation time
// by older clients.
type PaymentTerms struct {
	Required  bool    `json:"required"`
	Amount    float64 `json:"amount,omitempty"`
	Address   string  `json:"address,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// SessionRequest is the root fact of a session. It is written once and never
// altered; everything that happens to the session afterwards is expressed as
// further facts referencing its ID. Status is the last explicitly recorded
// status and may be stale relative to later facts, so readers must go
// through the projection rather than trusting it directly.
type SessionRequest struct {
	ID              string        `json:"id"`
	MentorID        string        `json:"mentor_id"`
	LearnerID       string        `json:"learner_id"`
	SkillRef        string        `json:"skill_ref,omitempty"`
	ScheduledAt     time.Time     `json:"scheduled_at"`
	DurationMinutes int           `json:"duration_minutes"`
	Notes           *string       `json:"notes,omitempty"`
	Status          string        `json:"status"`
	Payment         *PaymentTerms `json:"payment,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Confirmation records one participant's agreement to the session.
type Confirmation struct {
	SessionID   string    `json:"session_id"`
	Participant string    `json:"participant"`
	CreatedAt   time.Time `json:"created_at"`
}

// Rejection records one participant's refusal. A rejection dominates any
// confirmation when status is computed.
type Rejection struct {
	SessionID   string    `json:"session_id"`
	Participant string    `json:"participant"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentSubmission records the learner handing over a payment reference.
type PaymentSubmission struct {
	SessionID   string    `json:"session_id"`
	Participant string    `json:"participant"`
	Reference   string    `json:"reference"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentValidation attests that a payment reference was accepted. Either
// participant may author one; its presence alone marks payment validated.
type PaymentValidation struct {
	SessionID   string    `json:"session_id"`
	Participant string    `json:"participant"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MeetingInfo holds the provisioned video room. Its existence is the
// idempotency guard for provisioning; duplicates from racing triggers are
// benign and readers take the earliest.
type MeetingInfo struct {
	SessionID string    `json:"session_id"`
	RoomID    string    `json:"room_id"`
	JoinURL   string    `json:"join_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ProjectedSession is the derived state of one session: the request plus
// everything folded out of its related facts. It is recomputed on every read
// and never stored.
type ProjectedSession struct {
	SessionRequest
	MentorConfirmed  bool         `json:"mentor_confirmed"`
	LearnerConfirmed bool         `json:"learner_confirmed"`
	PaymentRequired  bool         `json:"payment_required"`
	PaymentSubmitted bool         `json:"payment_submitted"`
	PaymentValidated bool         `json:"payment_validated"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	Meeting          *MeetingInfo `json:"meeting,omitempty"`
}
