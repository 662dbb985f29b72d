package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/understories/p2pmentor/internal/models"
	"github.com/understories/p2pmentor/internal/repository"
	"github.com/understories/p2pmentor/internal/store"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notificationEvent
}

type notificationEvent struct {
	Recipient string
	Kind      string
}

func (n *recordingNotifier) Notify(recipient, kind string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notificationEvent{Recipient: recipient, Kind: kind})
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, event := range n.events {
		if event.Kind == kind {
			total++
		}
	}
	return total
}

type testEngine struct {
	service     *SessionService
	provisioner *MeetingProvisioner
	repo        *repository.FactRepository
	store       *store.MemoryStore
	notifier    *recordingNotifier
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	memStore := store.NewMemoryStore()
	repo := repository.NewFactRepository(memStore, "test-space")
	provisioner := NewMeetingProvisioner(repo, time.Hour, "https://meet.example.com")
	notifier := &recordingNotifier{}
	service := NewSessionService(repo, provisioner, notifier, time.Hour, zerolog.Nop())

	return &testEngine{
		service:     service,
		provisioner: provisioner,
		repo:        repo,
		store:       memStore,
		notifier:    notifier,
	}
}

func pendingSession(t *testing.T, engine *testEngine, actorID string, payment *models.PaymentTerms) *models.ProjectedSession {
	t.Helper()

	session, err := engine.service.CreateSession(context.Background(), actorID, CreateSessionInput{
		MentorID:        "mentor-1",
		LearnerID:       "learner-1",
		SkillRef:        "skill/go",
		ScheduledAt:     time.Now().UTC().Add(24 * time.Hour),
		DurationMinutes: 60,
		Payment:         payment,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func TestCreateSessionRejectsSelfMentorship(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.service.CreateSession(context.Background(), "mentor-1", CreateSessionInput{
		MentorID:        "mentor-1",
		LearnerID:       " mentor-1 ",
		ScheduledAt:     time.Now().UTC().Add(time.Hour),
		DurationMinutes: 30,
	})
	if !errors.Is(err, ErrSelfSession) {
		t.Fatalf("expected ErrSelfSession, got %v", err)
	}
}

func TestCreateSessionSelfConfirmsRequester(t *testing.T) {
	engine := newTestEngine(t)

	session := pendingSession(t, engine, "learner-1", nil)

	if !session.LearnerConfirmed {
		t.Fatal("expected requester to be self-confirmed")
	}
	if session.MentorConfirmed {
		t.Fatal("mentor must not be confirmed yet")
	}
	if session.Status != models.StatusPending {
		t.Fatalf("expected pending, got %q", session.Status)
	}
	if got := engine.notifier.count(NotificationSessionRequested); got != 1 {
		t.Fatalf("expected 1 session_requested notification, got %d", got)
	}

	confirmations, err := engine.repo.ListConfirmations(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ListConfirmations: %v", err)
	}
	if len(confirmations) != 1 || confirmations[0].Participant != "learner-1" {
		t.Fatalf("expected one learner confirmation fact, got %+v", confirmations)
	}
}

func TestConfirmFlowSchedulesAndProvisionsOnce(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", nil)

	afterMentor, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1")
	if err != nil {
		t.Fatalf("mentor ConfirmSession: %v", err)
	}
	if afterMentor.Status != models.StatusPending {
		t.Fatalf("expected pending after one confirmation, got %q", afterMentor.Status)
	}

	afterLearner, err := engine.service.ConfirmSession(ctx, session.ID, "learner-1")
	if err != nil {
		t.Fatalf("learner ConfirmSession: %v", err)
	}
	if afterLearner.Status != models.StatusScheduled {
		t.Fatalf("expected scheduled after both confirmations, got %q", afterLearner.Status)
	}
	if afterLearner.Meeting == nil || afterLearner.Meeting.JoinURL == "" {
		t.Fatalf("expected provisioned meeting, got %+v", afterLearner.Meeting)
	}

	meetings, err := engine.repo.ListMeetingInfos(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMeetingInfos: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("expected exactly one meeting fact, got %d", len(meetings))
	}
	if got := engine.notifier.count(NotificationSessionScheduled); got != 2 {
		t.Fatalf("expected both participants notified of scheduling, got %d", got)
	}
}

func TestMeetingProvisionerIsIdempotent(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", nil)

	request, err := engine.repo.GetSessionRequest(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSessionRequest: %v", err)
	}

	first, err := engine.provisioner.Provision(ctx, request)
	if err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	second, err := engine.provisioner.Provision(ctx, request)
	if err != nil {
		t.Fatalf("second Provision: %v", err)
	}

	if first.RoomID != second.RoomID || first.JoinURL != second.JoinURL {
		t.Fatalf("expected stable room across attempts: %+v vs %+v", first, second)
	}

	meetings, err := engine.repo.ListMeetingInfos(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMeetingInfos: %v", err)
	}
	if len(meetings) != 1 {
		t.Fatalf("expected one meeting fact after double provisioning, got %d", len(meetings))
	}
}

func TestConfirmSessionDuplicateGuard(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", nil)

	if _, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1"); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if _, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1"); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("expected ErrAlreadyConfirmed, got %v", err)
	}
}

func TestConfirmSessionRequiresParticipant(t *testing.T) {
	engine := newTestEngine(t)
	session := pendingSession(t, engine, "operator-1", nil)

	if _, err := engine.service.ConfirmSession(context.Background(), session.ID, "stranger-1"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestRejectionIsStickyAgainstLaterConfirmation(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", nil)

	if _, err := engine.service.ConfirmSession(ctx, session.ID, "learner-1"); err != nil {
		t.Fatalf("learner ConfirmSession: %v", err)
	}

	rejected, err := engine.service.RejectSession(ctx, session.ID, "mentor-1")
	if err != nil {
		t.Fatalf("RejectSession: %v", err)
	}
	if rejected.Status != models.StatusDeclined {
		t.Fatalf("expected declined, got %q", rejected.Status)
	}

	// A mentor confirmation after the rejection cannot revive the session.
	afterConfirm, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1")
	if err != nil {
		t.Fatalf("mentor ConfirmSession after rejection: %v", err)
	}
	if afterConfirm.Status != models.StatusDeclined {
		t.Fatalf("expected declined to stick, got %q", afterConfirm.Status)
	}
}

func TestSubmitPaymentRequiresMentorConfirmation(t *testing.T) {
	engine := newTestEngine(t)
	session := pendingSession(t, engine, "operator-1", &models.PaymentTerms{Required: true, Amount: 40})

	_, err := engine.service.SubmitPayment(context.Background(), session.ID, "learner-1", "pay-001")
	if !errors.Is(err, ErrMentorNotConfirmed) {
		t.Fatalf("expected ErrMentorNotConfirmed, got %v", err)
	}
}

func TestSubmitPaymentFlow(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", &models.PaymentTerms{Required: true, Amount: 40})

	if _, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1"); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}

	if _, err := engine.service.SubmitPayment(ctx, session.ID, "mentor-1", "pay-001"); !errors.Is(err, ErrNotLearner) {
		t.Fatalf("expected ErrNotLearner, got %v", err)
	}

	submitted, err := engine.service.SubmitPayment(ctx, session.ID, "learner-1", "pay-001")
	if err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}
	if !submitted.PaymentSubmitted || submitted.PaymentReference != "pay-001" {
		t.Fatalf("expected submitted payment pay-001, got %+v", submitted)
	}

	if _, err := engine.service.SubmitPayment(ctx, session.ID, "learner-1", "pay-002"); !errors.Is(err, ErrPaymentAlreadySubmitted) {
		t.Fatalf("expected ErrPaymentAlreadySubmitted, got %v", err)
	}
	if got := engine.notifier.count(NotificationPaymentSubmitted); got != 1 {
		t.Fatalf("expected 1 payment_submitted notification, got %d", got)
	}
}

func TestSubmitPaymentNotRequired(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", nil)

	if _, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1"); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if _, err := engine.service.SubmitPayment(ctx, session.ID, "learner-1", "pay-001"); !errors.Is(err, ErrPaymentNotRequired) {
		t.Fatalf("expected ErrPaymentNotRequired, got %v", err)
	}
}

func TestValidatePaymentChecksSubmittedReference(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	session := pendingSession(t, engine, "operator-1", &models.PaymentTerms{Required: true, Amount: 40})

	if _, err := engine.service.ConfirmSession(ctx, session.ID, "mentor-1"); err != nil {
		t.Fatalf("ConfirmSession: %v", err)
	}
	if _, err := engine.service.SubmitPayment(ctx, session.ID, "learner-1", "pay-001"); err != nil {
		t.Fatalf("SubmitPayment: %v", err)
	}

	if _, err := engine.service.ValidatePayment(ctx, session.ID, "mentor-1", "pay-999"); !errors.Is(err, ErrPaymentReferenceMismatch) {
		t.Fatalf("expected ErrPaymentReferenceMismatch, got %v", err)
	}

	validated, err := engine.service.ValidatePayment(ctx, session.ID, "mentor-1", "pay-001")
	if err != nil {
		t.Fatalf("ValidatePayment: %v", err)
	}
	if !validated.PaymentValidated || validated.PaymentReference != "pay-001" {
		t.Fatalf("expected validated payment pay-001, got %+v", validated)
	}
}

func TestValidatePaymentWithoutSubmission(t *testing.T) {
	engine := newTestEngine(t)
	session := pendingSession(t, engine, "operator-1", nil)

	validated, err := engine.service.ValidatePayment(context.Background(), session.ID, "learner-1", "out-of-band")
	if err != nil {
		t.Fatalf("ValidatePayment: %v", err)
	}
	if !validated.PaymentValidated {
		t.Fatal("expected payment validated")
	}
}

func TestUnconfirmedWriteSurfacesTxRef(t *testing.T) {
	engine := newTestEngine(t)
	engine.store.NextCreateErr = &store.UnconfirmedWriteError{
		TxRef: "tx-42",
		Err:   errors.New("confirmation poll timed out"),
	}

	_, err := engine.service.CreateSession(context.Background(), "learner-1", CreateSessionInput{
		MentorID:        "mentor-1",
		LearnerID:       "learner-1",
		ScheduledAt:     time.Now().UTC().Add(time.Hour),
		DurationMinutes: 30,
	})

	unconfirmed, ok := store.AsUnconfirmed(err)
	if !ok {
		t.Fatalf("expected UnconfirmedWriteError, got %v", err)
	}
	if unconfirmed.TxRef != "tx-42" {
		t.Fatalf("expected recovered tx ref tx-42, got %q", unconfirmed.TxRef)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	engine := newTestEngine(t)

	if _, err := engine.service.GetSession(context.Background(), "mentor-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetSessionRequiresParticipant(t *testing.T) {
	engine := newTestEngine(t)
	session := pendingSession(t, engine, "operator-1", nil)

	if _, err := engine.service.GetSession(context.Background(), "stranger-1", session.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestListSessionsCoversBothRoles(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.service.CreateSession(ctx, "mentor-1", CreateSessionInput{
		MentorID:        "mentor-1",
		LearnerID:       "learner-1",
		ScheduledAt:     time.Now().UTC().Add(2 * time.Hour),
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("CreateSession as mentor: %v", err)
	}
	if _, err := engine.service.CreateSession(ctx, "mentor-1", CreateSessionInput{
		MentorID:        "other-mentor",
		LearnerID:       "mentor-1",
		ScheduledAt:     time.Now().UTC().Add(3 * time.Hour),
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("CreateSession as learner: %v", err)
	}
	if _, err := engine.service.CreateSession(ctx, "someone-else", CreateSessionInput{
		MentorID:        "other-mentor",
		LearnerID:       "other-learner",
		ScheduledAt:     time.Now().UTC().Add(4 * time.Hour),
		DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("CreateSession unrelated: %v", err)
	}

	sessions, err := engine.service.ListSessions(ctx, "mentor-1")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions touching mentor-1, got %d", len(sessions))
	}
}
