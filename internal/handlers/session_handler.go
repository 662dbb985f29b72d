package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/understories/p2pmentor/internal/models"
	"github.com/understories/p2pmentor/internal/services"
	"github.com/understories/p2pmentor/internal/store"
)

type SessionHandler struct {
	service sessionCommandService
}

type sessionCommandService interface {
	CreateSession(ctx context.Context, actorID string, input services.CreateSessionInput) (*models.ProjectedSession, error)
	ConfirmSession(ctx context.Context, sessionID, actorID string) (*models.ProjectedSession, error)
	RejectSession(ctx context.Context, sessionID, actorID string) (*models.ProjectedSession, error)
	SubmitPayment(ctx context.Context, sessionID, actorID, reference string) (*models.ProjectedSession, error)
	ValidatePayment(ctx context.Context, sessionID, actorID, reference string) (*models.ProjectedSession, error)
	GetSession(ctx context.Context, actorID, sessionID string) (*models.ProjectedSession, error)
	ListSessions(ctx context.Context, actorID string) ([]models.ProjectedSession, error)
}

func NewSessionHandler(service *services.SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type paymentTermsRequest struct {
	Required bool    `json:"required"`
	Amount   float64 `json:"amount"`
	Address  string  `json:"address"`
}

type createSessionRequest struct {
	MentorID        string               `json:"mentor_id"`
	LearnerID       string               `json:"learner_id"`
	SkillRef        string               `json:"skill_ref"`
	ScheduledAt     string               `json:"scheduled_at"`
	DurationMinutes int                  `json:"duration_minutes"`
	Notes           *string              `json:"notes"`
	Payment         *paymentTermsRequest `json:"payment"`
}

type paymentReferenceRequest struct {
	Reference string `json:"reference"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "scheduled_at must be a valid RFC3339 timestamp"})
	}
	if req.DurationMinutes <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duration_minutes must be greater than 0"})
	}
	if req.Notes != nil && strings.TrimSpace(*req.Notes) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "notes must not be empty"})
	}

	var payment *models.PaymentTerms
	if req.Payment != nil {
		payment = &models.PaymentTerms{
			Required: req.Payment.Required,
			Amount:   req.Payment.Amount,
			Address:  strings.TrimSpace(req.Payment.Address),
		}
	}

	session, err := h.service.CreateSession(c.Context(), actorID, services.CreateSessionInput{
		MentorID:        req.MentorID,
		LearnerID:       req.LearnerID,
		SkillRef:        req.SkillRef,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Payment:         payment,
	})
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ConfirmSession(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.ConfirmSession(c.Context(), sessionID, actorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) RejectSession(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.RejectSession(c.Context(), sessionID, actorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) SubmitPayment(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req paymentReferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.SubmitPayment(c.Context(), sessionID, actorID, req.Reference)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ValidatePayment(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	var req paymentReferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	session, err := h.service.ValidatePayment(c.Context(), sessionID, actorID, req.Reference)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessionID := strings.TrimSpace(c.Params("id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}

	session, err := h.service.GetSession(c.Context(), actorID, sessionID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actorID, ok := actorFromLocals(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	sessions, err := h.service.ListSessions(c.Context(), actorID)
	if err != nil {
		return mapSessionError(c, err)
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

func actorFromLocals(c *fiber.Ctx) (string, bool) {
	actorID, ok := c.Locals("actor_id").(string)
	if !ok || strings.TrimSpace(actorID) == "" {
		return "", false
	}
	return actorID, true
}

func mapSessionError(c *fiber.Ctx, err error) error {
	if unconfirmed, ok := store.AsUnconfirmed(err); ok {
		// The write was submitted but its commit was never observed. The
		// caller should poll the read path rather than retry.
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"status": "submitted",
			"tx_ref": unconfirmed.TxRef,
		})
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrSelfSession):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNotParticipant), errors.Is(err, services.ErrNotLearner):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	case errors.Is(err, services.ErrAlreadyConfirmed),
		errors.Is(err, services.ErrAlreadyRejected),
		errors.Is(err, services.ErrPaymentAlreadySubmitted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrPaymentNotRequired),
		errors.Is(err, services.ErrMentorNotConfirmed),
		errors.Is(err, services.ErrPaymentReferenceMismatch):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process session request"})
	}
}
