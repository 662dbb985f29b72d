package services

import "github.com/understories/p2pmentor/internal/models"

// ProjectSession folds every fact recorded for one session into its current
// state. It is pure and total: identical fact sets always produce the
// identical projection, and no input combination is an error.
//
// Status rules, in order:
//  1. a rejection by either participant forces declined, regardless of any
//     confirmations;
//  2. both participants confirmed yields scheduled, unless the request's
//     recorded status already advanced to in-progress or completed, which
//     are preserved;
//  3. a recorded "scheduled" without both confirmations on record is a stale
//     marker and reverts to pending;
//  4. otherwise the last recorded status stands, defaulting to pending.
//
// Duplicate facts from the same participant collapse into set membership, so
// racing duplicate writes never change the outcome.
func ProjectSession(
	request *models.SessionRequest,
	confirmations []models.Confirmation,
	rejections []models.Rejection,
	submissions []models.PaymentSubmission,
	validations []models.PaymentValidation,
	meetings []models.MeetingInfo,
) *models.ProjectedSession {
	projected := &models.ProjectedSession{SessionRequest: *request}

	confirmers := make(map[string]struct{}, len(confirmations))
	for _, confirmation := range confirmations {
		confirmers[confirmation.Participant] = struct{}{}
	}
	rejecters := make(map[string]struct{}, len(rejections))
	for _, rejection := range rejections {
		rejecters[rejection.Participant] = struct{}{}
	}

	_, projected.MentorConfirmed = confirmers[request.MentorID]
	_, projected.LearnerConfirmed = confirmers[request.LearnerID]
	_, mentorRejected := rejecters[request.MentorID]
	_, learnerRejected := rejecters[request.LearnerID]

	switch {
	case mentorRejected || learnerRejected:
		projected.Status = models.StatusDeclined
	case projected.MentorConfirmed && projected.LearnerConfirmed:
		if request.Status == models.StatusInProgress || request.Status == models.StatusCompleted {
			projected.Status = request.Status
		} else {
			projected.Status = models.StatusScheduled
		}
	case request.Status == models.StatusScheduled:
		// A recorded scheduled status without both confirmations on record
		// is stale; the confirmations are authoritative.
		projected.Status = models.StatusPending
	case request.Status == "":
		projected.Status = models.StatusPending
	default:
		projected.Status = request.Status
	}

	projected.PaymentRequired = request.Payment != nil && request.Payment.Required
	projected.PaymentSubmitted = len(submissions) > 0
	projected.PaymentValidated = len(validations) > 0
	projected.PaymentReference = paymentReference(request, submissions, validations)

	if len(meetings) > 0 {
		meeting := meetings[0]
		projected.Meeting = &meeting
	}

	return projected
}

// paymentReference prefers a validated reference, then the submitted one,
// then any reference embedded in the original request by older clients.
func paymentReference(
	request *models.SessionRequest,
	submissions []models.PaymentSubmission,
	validations []models.PaymentValidation,
) string {
	for _, validation := range validations {
		if validation.Reference != "" {
			return validation.Reference
		}
	}
	for _, submission := range submissions {
		if submission.Reference != "" {
			return submission.Reference
		}
	}
	if request.Payment != nil {
		return request.Payment.Reference
	}
	return ""
}
