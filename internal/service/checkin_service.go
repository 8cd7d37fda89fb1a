package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenboard/checkin/internal/cache"
	"github.com/havenboard/checkin/internal/domain"
	"github.com/havenboard/checkin/internal/repo/postgres"
	"github.com/havenboard/checkin/pkg/events"
	"github.com/havenboard/checkin/pkg/logger"
)

type CheckInService interface {
	Insert(ctx context.Context, req *domain.CheckInReq) (*domain.CheckIn, error)
	Update(ctx context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error)
	CheckOut(ctx context.Context, id, anonymousID string) (*domain.CheckIn, error)
	Delete(ctx context.Context, id string) error
	GetActiveCheckIns(ctx context.Context) ([]domain.CheckIn, error)
	GetAllCheckIns(ctx context.Context) ([]domain.CheckIn, error)
	GetByAnonymousID(ctx context.Context, anonymousID string) (*domain.CheckIn, error)
	GetActiveCheckInByAnonymousID(ctx context.Context, anonymousID string) (*domain.CheckIn, error)
	GetAllCheckInsByAnonymousID(ctx context.Context, anonymousID string) ([]domain.CheckIn, error)
}

type checkInService struct {
	repo      postgres.CheckInRepo
	listCache cache.ListCache
	bus       events.Publisher
}

func NewCheckInService(repo postgres.CheckInRepo, listCache cache.ListCache, bus events.Publisher) CheckInService {
	return &checkInService{
		repo:      repo,
		listCache: listCache,
		bus:       bus,
	}
}

// Insert creates a new active check-in. A missing anonymousId gets a fresh
// UUID; no uniqueness is enforced either way, the same anonymousId may check
// in any number of times.
func (s *checkInService) Insert(ctx context.Context, req *domain.CheckInReq) (*domain.CheckIn, error) {
	anonymousID := req.AnonymousID
	if anonymousID == "" {
		anonymousID = uuid.NewString()
	}

	c, err := s.repo.Insert(ctx, anonymousID, req.DeviceInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create check-in: %w", err)
	}

	s.listCache.Invalidate(ctx)

	s.publish(ctx, events.CheckInCreated, events.CheckInCreatedEvent{
		CheckInID:   c.ID,
		AnonymousID: c.AnonymousID,
		DeviceInfo:  deref(c.DeviceInfo),
		CheckInTime: c.CheckInTime,
	})

	return c, nil
}

// Update is the generic mutator. It applies the provided fields as-is and
// refreshes updatedAt; checkOut goes through the same store write.
func (s *checkInService) Update(ctx context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error) {
	c, err := s.applyPatch(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.CheckInUpdated, events.CheckInUpdatedEvent{
		CheckInID: c.ID,
		Status:    string(c.Status),
		UpdatedAt: c.UpdatedAt,
	})

	return c, nil
}

// CheckOut transitions a record to checked-out and stamps checkOutTime.
// When anonymousID is supplied the caller must prove ownership: the stored
// anonymousId has to match exactly, otherwise ErrUnauthorized. An empty
// anonymousID skips the ownership check.
//
// There is no terminal-state guard: checking out an already-checked-out
// record succeeds and re-stamps checkOutTime.
func (s *checkInService) CheckOut(ctx context.Context, id, anonymousID string) (*domain.CheckIn, error) {
	if anonymousID != "" {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load check-in: %w", err)
		}
		if existing == nil {
			return nil, domain.ErrNotFound
		}
		if existing.AnonymousID != anonymousID {
			return nil, domain.ErrUnauthorized
		}
	}

	now := time.Now().UTC()
	status := domain.StatusCheckedOut
	c, err := s.applyPatch(ctx, id, domain.CheckInPatch{Status: &status, CheckOutTime: &now})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.CheckInCheckedOut, events.CheckInCheckedOutEvent{
		CheckInID:    c.ID,
		AnonymousID:  c.AnonymousID,
		CheckOutTime: now,
	})

	return c, nil
}

func (s *checkInService) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete check-in: %w", err)
	}
	if !deleted {
		return domain.ErrNotFound
	}

	s.listCache.Invalidate(ctx)

	s.publish(ctx, events.CheckInDeleted, events.CheckInDeletedEvent{
		CheckInID: id,
		DeletedAt: time.Now().UTC(),
	})

	return nil
}

func (s *checkInService) GetActiveCheckIns(ctx context.Context) ([]domain.CheckIn, error) {
	if cs, ok := s.listCache.GetActive(ctx); ok {
		return cs, nil
	}

	cs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-ins: %w", err)
	}

	s.listCache.SetActive(ctx, cs)
	return cs, nil
}

func (s *checkInService) GetAllCheckIns(ctx context.Context) ([]domain.CheckIn, error) {
	if cs, ok := s.listCache.GetAll(ctx); ok {
		return cs, nil
	}

	cs, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-ins: %w", err)
	}

	s.listCache.SetAll(ctx, cs)
	return cs, nil
}

func (s *checkInService) GetByAnonymousID(ctx context.Context, anonymousID string) (*domain.CheckIn, error) {
	c, err := s.repo.FirstByAnonymousID(ctx, anonymousID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-in: %w", err)
	}
	return c, nil
}

func (s *checkInService) GetActiveCheckInByAnonymousID(ctx context.Context, anonymousID string) (*domain.CheckIn, error) {
	c, err := s.repo.FirstByAnonymousID(ctx, anonymousID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active check-in: %w", err)
	}
	return c, nil
}

func (s *checkInService) GetAllCheckInsByAnonymousID(ctx context.Context, anonymousID string) ([]domain.CheckIn, error) {
	cs, err := s.repo.ListByAnonymousID(ctx, anonymousID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch check-ins: %w", err)
	}
	return cs, nil
}

// applyPatch performs the shared store write for Update and CheckOut.
func (s *checkInService) applyPatch(ctx context.Context, id string, patch domain.CheckInPatch) (*domain.CheckIn, error) {
	c, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update check-in: %w", err)
	}
	if c == nil {
		return nil, domain.ErrNotFound
	}

	s.listCache.Invalidate(ctx)
	return c, nil
}

func (s *checkInService) publish(ctx context.Context, subject string, event any) {
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
