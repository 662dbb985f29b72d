package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/understories/p2pmentor/internal/models"
	"github.com/understories/p2pmentor/internal/repository"
)

var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrInvalidInput             = errors.New("invalid input")
	ErrSelfSession              = errors.New("mentor and learner must be different participants")
	ErrNotParticipant           = errors.New("not a session participant")
	ErrAlreadyConfirmed         = errors.New("participant already confirmed this session")
	ErrAlreadyRejected          = errors.New("participant already rejected this session")
	ErrPaymentNotRequired       = errors.New("session does not require payment")
	ErrMentorNotConfirmed       = errors.New("mentor has not confirmed the session")
	ErrPaymentAlreadySubmitted  = errors.New("payment already submitted")
	ErrNotLearner               = errors.New("only the learner can submit payment")
	ErrPaymentReferenceMismatch = errors.New("payment reference does not match the submission")
)

// Notification kinds pushed to participants.
const (
	NotificationSessionRequested = "session_requested"
	NotificationSessionConfirmed = "session_confirmed"
	NotificationSessionScheduled = "session_scheduled"
	NotificationSessionRejected  = "session_rejected"
	NotificationPaymentSubmitted = "payment_submitted"
	NotificationPaymentValidated = "payment_validated"
)

// Notifier delivers lifecycle notifications. Delivery is fire-and-forget:
// implementations must never block and must swallow their own failures.
type Notifier interface {
	Notify(recipient, kind string, payload any)
}

// SessionService implements the session lifecycle commands. Each command is
// a stateless unit of work: it loads the session's facts, projects them,
// validates the command against the projection, appends new facts, and
// fires best-effort side effects. All coordination goes through the store;
// the store's eventual read-after-write consistency is compensated for by
// merging each just-written fact into the read set before re-projecting.
type SessionService struct {
	repo        *repository.FactRepository
	provisioner *MeetingProvisioner
	notifier    Notifier
	buffer      time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

func NewSessionService(
	repo *repository.FactRepository,
	provisioner *MeetingProvisioner,
	notifier Notifier,
	buffer time.Duration,
	logger zerolog.Logger,
) *SessionService {
	return &SessionService{
		repo:        repo,
		provisioner: provisioner,
		notifier:    notifier,
		buffer:      buffer,
		logger:      logger,
		now:         time.Now,
	}
}

type CreateSessionInput struct {
	MentorID        string
	LearnerID       string
	SkillRef        string
	ScheduledAt     time.Time
	DurationMinutes int
	Notes           *string
	Payment         *models.PaymentTerms
}

// CreateSession appends the root SessionRequest fact. When the acting user
// is one of the participants a Confirmation is appended on their behalf in
// the same command, so the requester does not need a second round trip.
func (s *SessionService) CreateSession(
	ctx context.Context,
	actorID string,
	input CreateSessionInput,
) (*models.ProjectedSession, error) {
	mentorID := strings.TrimSpace(input.MentorID)
	learnerID := strings.TrimSpace(input.LearnerID)
	actorID = strings.TrimSpace(actorID)

	if mentorID == "" || learnerID == "" {
		return nil, ErrInvalidInput
	}
	if input.DurationMinutes <= 0 || input.ScheduledAt.IsZero() {
		return nil, ErrInvalidInput
	}
	if mentorID == learnerID {
		return nil, ErrSelfSession
	}

	now := s.now().UTC()
	request := &models.SessionRequest{
		ID:              uuid.NewString(),
		MentorID:        mentorID,
		LearnerID:       learnerID,
		SkillRef:        strings.TrimSpace(input.SkillRef),
		ScheduledAt:     input.ScheduledAt.UTC(),
		DurationMinutes: input.DurationMinutes,
		Notes:           input.Notes,
		Status:          models.StatusPending,
		Payment:         input.Payment,
		CreatedAt:       now,
	}

	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, s.buffer, now)
	if _, err := s.repo.CreateSessionRequest(ctx, request, ttl); err != nil {
		return nil, err
	}

	confirmations := make([]models.Confirmation, 0, 1)
	if actorID == mentorID || actorID == learnerID {
		confirmation := &models.Confirmation{
			SessionID:   request.ID,
			Participant: actorID,
			CreatedAt:   now,
		}
		if _, err := s.repo.CreateConfirmation(ctx, confirmation, ttl); err != nil {
			// The requester can still confirm explicitly later.
			s.logger.Warn().Err(err).
				Str("session_id", request.ID).
				Msg("self-confirmation write failed")
		} else {
			confirmations = append(confirmations, *confirmation)
		}
		s.notify(counterpart(request, actorID), NotificationSessionRequested, request)
	} else {
		s.notify(request.MentorID, NotificationSessionRequested, request)
		s.notify(request.LearnerID, NotificationSessionRequested, request)
	}

	return ProjectSession(request, confirmations, nil, nil, nil, nil), nil
}

// ConfirmSession appends the actor's Confirmation. If both participants are
// confirmers afterwards, the meeting is provisioned best-effort.
func (s *SessionService) ConfirmSession(
	ctx context.Context,
	sessionID string,
	actorID string,
) (*models.ProjectedSession, error) {
	facts, err := s.loadFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	request := facts.request

	if !isParticipant(request, actorID) {
		return nil, ErrNotParticipant
	}
	// Check-then-create: a concurrent confirmation by the same actor can
	// slip through. The duplicate fact collapses at projection time.
	for _, confirmation := range facts.confirmations {
		if confirmation.Participant == actorID {
			return nil, ErrAlreadyConfirmed
		}
	}

	now := s.now().UTC()
	confirmation := &models.Confirmation{
		SessionID:   sessionID,
		Participant: actorID,
		CreatedAt:   now,
	}
	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, s.buffer, now)
	if _, err := s.repo.CreateConfirmation(ctx, confirmation, ttl); err != nil {
		return nil, err
	}

	fresh := s.refreshFacts(ctx, facts)
	fresh.confirmations = unionConfirmation(fresh.confirmations, *confirmation)
	projected := fresh.project()

	if projected.MentorConfirmed && projected.LearnerConfirmed {
		if meeting, err := s.provisioner.Provision(ctx, fresh.request); err != nil {
			s.logger.Error().Err(err).
				Str("session_id", sessionID).
				Msg("meeting provisioning failed")
		} else if projected.Meeting == nil {
			projected.Meeting = meeting
		}
		s.notify(request.MentorID, NotificationSessionScheduled, projected)
		s.notify(request.LearnerID, NotificationSessionScheduled, projected)
	} else {
		s.notify(counterpart(request, actorID), NotificationSessionConfirmed, projected)
	}

	return projected, nil
}

// RejectSession appends the actor's Rejection. A rejection dominates any
// confirmation, so the projected status becomes declined.
func (s *SessionService) RejectSession(
	ctx context.Context,
	sessionID string,
	actorID string,
) (*models.ProjectedSession, error) {
	facts, err := s.loadFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	request := facts.request

	if !isParticipant(request, actorID) {
		return nil, ErrNotParticipant
	}
	for _, rejection := range facts.rejections {
		if rejection.Participant == actorID {
			return nil, ErrAlreadyRejected
		}
	}

	now := s.now().UTC()
	rejection := &models.Rejection{
		SessionID:   sessionID,
		Participant: actorID,
		CreatedAt:   now,
	}
	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, s.buffer, now)
	if _, err := s.repo.CreateRejection(ctx, rejection, ttl); err != nil {
		return nil, err
	}

	fresh := s.refreshFacts(ctx, facts)
	fresh.rejections = unionRejection(fresh.rejections, *rejection)
	projected := fresh.project()

	s.notify(counterpart(request, actorID), NotificationSessionRejected, projected)

	return projected, nil
}

// SubmitPayment records the learner's payment reference. Allowed only after
// the mentor has confirmed a payment-requiring session, and only once.
func (s *SessionService) SubmitPayment(
	ctx context.Context,
	sessionID string,
	actorID string,
	reference string,
) (*models.ProjectedSession, error) {
	facts, err := s.loadFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	request := facts.request

	if !isParticipant(request, actorID) {
		return nil, ErrNotParticipant
	}
	if request.Payment == nil || !request.Payment.Required {
		return nil, ErrPaymentNotRequired
	}
	mentorConfirmed := false
	for _, confirmation := range facts.confirmations {
		if confirmation.Participant == request.MentorID {
			mentorConfirmed = true
			break
		}
	}
	if !mentorConfirmed {
		return nil, ErrMentorNotConfirmed
	}
	if len(facts.submissions) > 0 {
		return nil, ErrPaymentAlreadySubmitted
	}
	if actorID != request.LearnerID {
		return nil, ErrNotLearner
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrInvalidInput
	}

	now := s.now().UTC()
	submission := &models.PaymentSubmission{
		SessionID:   sessionID,
		Participant: actorID,
		Reference:   reference,
		CreatedAt:   now,
	}
	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, s.buffer, now)
	if _, err := s.repo.CreatePaymentSubmission(ctx, submission, ttl); err != nil {
		return nil, err
	}

	fresh := s.refreshFacts(ctx, facts)
	fresh.submissions = unionSubmission(fresh.submissions, *submission)
	projected := fresh.project()

	s.notify(request.MentorID, NotificationPaymentSubmitted, projected)

	return projected, nil
}

// ValidatePayment attests that the payment reference was accepted. Either
// participant may validate; if a submission exists the reference must match
// it.
func (s *SessionService) ValidatePayment(
	ctx context.Context,
	sessionID string,
	actorID string,
	reference string,
) (*models.ProjectedSession, error) {
	facts, err := s.loadFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	request := facts.request

	if !isParticipant(request, actorID) {
		return nil, ErrNotParticipant
	}
	reference = strings.TrimSpace(reference)
	if len(facts.submissions) > 0 && facts.submissions[0].Reference != reference {
		return nil, ErrPaymentReferenceMismatch
	}

	now := s.now().UTC()
	validation := &models.PaymentValidation{
		SessionID:   sessionID,
		Participant: actorID,
		Reference:   reference,
		CreatedAt:   now,
	}
	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, s.buffer, now)
	if _, err := s.repo.CreatePaymentValidation(ctx, validation, ttl); err != nil {
		return nil, err
	}

	fresh := s.refreshFacts(ctx, facts)
	fresh.validations = append(fresh.validations, *validation)
	projected := fresh.project()

	s.notify(counterpart(request, actorID), NotificationPaymentValidated, projected)

	return projected, nil
}

// GetSession projects the current state of one session for a participant.
func (s *SessionService) GetSession(
	ctx context.Context,
	actorID string,
	sessionID string,
) (*models.ProjectedSession, error) {
	facts, err := s.loadFacts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(facts.request, actorID) {
		return nil, ErrNotParticipant
	}
	return facts.project(), nil
}

// ListSessions projects every session touching the participant.
func (s *SessionService) ListSessions(
	ctx context.Context,
	actorID string,
) ([]models.ProjectedSession, error) {
	requests, err := s.repo.ListSessionRequestsByParticipant(ctx, actorID)
	if err != nil {
		return nil, err
	}

	projections := make([]models.ProjectedSession, 0, len(requests))
	for i := range requests {
		facts, err := s.loadRelated(ctx, &requests[i])
		if err != nil {
			return nil, err
		}
		projections = append(projections, *facts.project())
	}
	return projections, nil
}

// sessionFacts is the complete fact set for one session as observed at one
// point in time.
type sessionFacts struct {
	request       *models.SessionRequest
	confirmations []models.Confirmation
	rejections    []models.Rejection
	submissions   []models.PaymentSubmission
	validations   []models.PaymentValidation
	meetings      []models.MeetingInfo
}

func (f *sessionFacts) project() *models.ProjectedSession {
	return ProjectSession(
		f.request,
		f.confirmations,
		f.rejections,
		f.submissions,
		f.validations,
		f.meetings,
	)
}

func (s *SessionService) loadFacts(
	ctx context.Context,
	sessionID string,
) (*sessionFacts, error) {
	request, err := s.repo.GetSessionRequest(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.loadRelated(ctx, request)
}

func (s *SessionService) loadRelated(
	ctx context.Context,
	request *models.SessionRequest,
) (*sessionFacts, error) {
	confirmations, err := s.repo.ListConfirmations(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	rejections, err := s.repo.ListRejections(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	submissions, err := s.repo.ListPaymentSubmissions(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	validations, err := s.repo.ListPaymentValidations(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	meetings, err := s.repo.ListMeetingInfos(ctx, request.ID)
	if err != nil {
		return nil, err
	}

	return &sessionFacts{
		request:       request,
		confirmations: confirmations,
		rejections:    rejections,
		submissions:   submissions,
		validations:   validations,
		meetings:      meetings,
	}, nil
}

// refreshFacts re-reads the fact set after a write. If the re-read fails the
// pre-command set is reused; the caller unions its own write in either way,
// so a lagging or failing read never loses the action just performed.
func (s *SessionService) refreshFacts(
	ctx context.Context,
	previous *sessionFacts,
) *sessionFacts {
	fresh, err := s.loadRelated(ctx, previous.request)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("session_id", previous.request.ID).
			Msg("post-write re-read failed, projecting from pre-command facts")
		return previous
	}
	return fresh
}

func (s *SessionService) notify(recipient, kind string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(recipient, kind, payload)
}

func isParticipant(request *models.SessionRequest, actorID string) bool {
	return actorID == request.MentorID || actorID == request.LearnerID
}

func counterpart(request *models.SessionRequest, actorID string) string {
	if actorID == request.MentorID {
		return request.LearnerID
	}
	return request.MentorID
}

func unionConfirmation(
	confirmations []models.Confirmation,
	confirmation models.Confirmation,
) []models.Confirmation {
	for _, existing := range confirmations {
		if existing.Participant == confirmation.Participant {
			return confirmations
		}
	}
	return append(confirmations, confirmation)
}

func unionRejection(
	rejections []models.Rejection,
	rejection models.Rejection,
) []models.Rejection {
	for _, existing := range rejections {
		if existing.Participant == rejection.Participant {
			return rejections
		}
	}
	return append(rejections, rejection)
}

func unionSubmission(
	submissions []models.PaymentSubmission,
	submission models.PaymentSubmission,
) []models.PaymentSubmission {
	for _, existing := range submissions {
		if existing.Participant == submission.Participant &&
			existing.Reference == submission.Reference {
			return submissions
		}
	}
	return append(submissions, submission)
}
