package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/understories/p2pmentor/internal/models"
	"github.com/understories/p2pmentor/internal/store"
)

// ErrNotFound is returned when no fact matches a lookup.
var ErrNotFound = errors.New("fact not found")

// Attribute vocabulary. Every fact carries space and type; session-scoped
// facts carry session_id, participant-authored facts carry participant.
const (
	attrSpace       = "space"
	attrType        = "type"
	attrSessionID   = "session_id"
	attrParticipant = "participant"
	attrMentorID    = "mentor_id"
	attrLearnerID   = "learner_id"

	typeSessionRequest    = "session_request"
	typeConfirmation      = "confirmation"
	typeRejection         = "rejection"
	typePaymentSubmission = "payment_submission"
	typePaymentValidation = "payment_validation"
	typeMeetingInfo       = "meeting_info"
)

// FactRepository is the typed boundary over the raw store: it owns the
// attribute vocabulary and decodes JSON payloads into fact structs exactly
// once, so nothing above it ever touches a dynamic attribute map.
type FactRepository struct {
	store store.Store
	space string
}

func NewFactRepository(st store.Store, space string) *FactRepository {
	return &FactRepository{store: st, space: space}
}

func (r *FactRepository) CreateSessionRequest(
	ctx context.Context,
	request *models.SessionRequest,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeSessionRequest,
		attrSessionID: request.ID,
		attrMentorID:  request.MentorID,
		attrLearnerID: request.LearnerID,
	}, payload, ttlSeconds)
}

// GetSessionRequest returns the earliest request fact recorded for the
// session. Duplicate request facts are possible under ambiguous-write
// retries from clients and are harmless.
func (r *FactRepository) GetSessionRequest(
	ctx context.Context,
	sessionID string,
) (*models.SessionRequest, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeSessionRequest,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	var request models.SessionRequest
	if err := json.Unmarshal(records[0].Payload, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

// ListSessionRequestsByParticipant returns every session touching the given
// participant, as mentor or learner. The store offers no OR filter, so this
// is two exact-match queries merged client-side, earliest fact per session.
func (r *FactRepository) ListSessionRequestsByParticipant(
	ctx context.Context,
	participant string,
) ([]models.SessionRequest, error) {
	asMentor, err := r.store.Query(ctx, map[string]string{
		attrSpace:    r.space,
		attrType:     typeSessionRequest,
		attrMentorID: participant,
	})
	if err != nil {
		return nil, err
	}
	asLearner, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeSessionRequest,
		attrLearnerID: participant,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	requests := make([]models.SessionRequest, 0, len(asMentor)+len(asLearner))
	for _, record := range append(asMentor, asLearner...) {
		var request models.SessionRequest
		if err := json.Unmarshal(record.Payload, &request); err != nil {
			return nil, err
		}
		if _, ok := seen[request.ID]; ok {
			continue
		}
		seen[request.ID] = struct{}{}
		requests = append(requests, request)
	}

	return requests, nil
}

func (r *FactRepository) CreateConfirmation(
	ctx context.Context,
	confirmation *models.Confirmation,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(confirmation)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:       r.space,
		attrType:        typeConfirmation,
		attrSessionID:   confirmation.SessionID,
		attrParticipant: confirmation.Participant,
	}, payload, ttlSeconds)
}

func (r *FactRepository) ListConfirmations(
	ctx context.Context,
	sessionID string,
) ([]models.Confirmation, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeConfirmation,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	confirmations := make([]models.Confirmation, 0, len(records))
	for _, record := range records {
		var confirmation models.Confirmation
		if err := json.Unmarshal(record.Payload, &confirmation); err != nil {
			return nil, err
		}
		confirmations = append(confirmations, confirmation)
	}
	return confirmations, nil
}

func (r *FactRepository) CreateRejection(
	ctx context.Context,
	rejection *models.Rejection,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(rejection)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:       r.space,
		attrType:        typeRejection,
		attrSessionID:   rejection.SessionID,
		attrParticipant: rejection.Participant,
	}, payload, ttlSeconds)
}

func (r *FactRepository) ListRejections(
	ctx context.Context,
	sessionID string,
) ([]models.Rejection, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeRejection,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	rejections := make([]models.Rejection, 0, len(records))
	for _, record := range records {
		var rejection models.Rejection
		if err := json.Unmarshal(record.Payload, &rejection); err != nil {
			return nil, err
		}
		rejections = append(rejections, rejection)
	}
	return rejections, nil
}

func (r *FactRepository) CreatePaymentSubmission(
	ctx context.Context,
	submission *models.PaymentSubmission,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:       r.space,
		attrType:        typePaymentSubmission,
		attrSessionID:   submission.SessionID,
		attrParticipant: submission.Participant,
	}, payload, ttlSeconds)
}

func (r *FactRepository) ListPaymentSubmissions(
	ctx context.Context,
	sessionID string,
) ([]models.PaymentSubmission, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typePaymentSubmission,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	submissions := make([]models.PaymentSubmission, 0, len(records))
	for _, record := range records {
		var submission models.PaymentSubmission
		if err := json.Unmarshal(record.Payload, &submission); err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

func (r *FactRepository) CreatePaymentValidation(
	ctx context.Context,
	validation *models.PaymentValidation,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(validation)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:       r.space,
		attrType:        typePaymentValidation,
		attrSessionID:   validation.SessionID,
		attrParticipant: validation.Participant,
	}, payload, ttlSeconds)
}

func (r *FactRepository) ListPaymentValidations(
	ctx context.Context,
	sessionID string,
) ([]models.PaymentValidation, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typePaymentValidation,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	validations := make([]models.PaymentValidation, 0, len(records))
	for _, record := range records {
		var validation models.PaymentValidation
		if err := json.Unmarshal(record.Payload, &validation); err != nil {
			return nil, err
		}
		validations = append(validations, validation)
	}
	return validations, nil
}

func (r *FactRepository) CreateMeetingInfo(
	ctx context.Context,
	meeting *models.MeetingInfo,
	ttlSeconds int64,
) (store.Receipt, error) {
	payload, err := json.Marshal(meeting)
	if err != nil {
		return store.Receipt{}, err
	}

	return r.store.Create(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeMeetingInfo,
		attrSessionID: meeting.SessionID,
	}, payload, ttlSeconds)
}

// ListMeetingInfos returns every meeting fact for the session in creation
// order. Racing provisioners can leave more than one; callers take the
// first.
func (r *FactRepository) ListMeetingInfos(
	ctx context.Context,
	sessionID string,
) ([]models.MeetingInfo, error) {
	records, err := r.store.Query(ctx, map[string]string{
		attrSpace:     r.space,
		attrType:      typeMeetingInfo,
		attrSessionID: sessionID,
	})
	if err != nil {
		return nil, err
	}

	meetings := make([]models.MeetingInfo, 0, len(records))
	for _, record := range records {
		var meeting models.MeetingInfo
		if err := json.Unmarshal(record.Payload, &meeting); err != nil {
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, nil
}
