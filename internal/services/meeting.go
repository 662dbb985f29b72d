package services

import (
	"context"
	"time"

	"github.com/understories/p2pmentor/internal/models"
	"github.com/understories/p2pmentor/internal/repository"
	"github.com/understories/p2pmentor/pkg/utils"
)

// MeetingProvisioner creates the video room fact once both participants
// have confirmed. The room identifier is derived deterministically from the
// session id, so repeated attempts always agree on the same room.
type MeetingProvisioner struct {
	repo    *repository.FactRepository
	buffer  time.Duration
	baseURL string
	now     func() time.Time
}

func NewMeetingProvisioner(
	repo *repository.FactRepository,
	buffer time.Duration,
	baseURL string,
) *MeetingProvisioner {
	return &MeetingProvisioner{
		repo:    repo,
		buffer:  buffer,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Provision ensures a meeting exists for the session and returns it. The
// existence check and the create are not atomic against the store, so two
// racing confirmations may each create a MeetingInfo fact; the duplicates
// resolve to the same room and readers take the earliest record.
func (p *MeetingProvisioner) Provision(
	ctx context.Context,
	request *models.SessionRequest,
) (*models.MeetingInfo, error) {
	existing, err := p.repo.ListMeetingInfos(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		meeting := existing[0]
		return &meeting, nil
	}

	roomID, joinURL := utils.DeriveRoom(request.ID, p.baseURL)
	meeting := &models.MeetingInfo{
		SessionID: request.ID,
		RoomID:    roomID,
		JoinURL:   joinURL,
		CreatedAt: p.now().UTC(),
	}

	ttl := RetentionSeconds(request.ScheduledAt, request.DurationMinutes, p.buffer, p.now())
	if _, err := p.repo.CreateMeetingInfo(ctx, meeting, ttl); err != nil {
		return nil, err
	}
	return meeting, nil
}
