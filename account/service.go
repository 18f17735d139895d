package account

import "context"

// ProfileStore abstracts repository operations for the service.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (Profile, error)
	Create(ctx context.Context, userID string) (Profile, error)
	SetProcessorAccount(ctx context.Context, userID, ref string, chargesEnabled, payoutsEnabled, identityVerified bool) error
}

// Service exposes business-level settlement account operations.
type Service struct {
	repo ProfileStore
}

// NewService builds a Service using the provided repository.
func NewService(repo ProfileStore) *Service {
	return &Service{repo: repo}
}

// GetByUserID returns the settlement account for the given user.
func (s *Service) GetByUserID(ctx context.Context, userID string) (Profile, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Onboard provisions the account row if needed and records the processor
// reference once the external onboarding flow reports back.
func (s *Service) Onboard(ctx context.Context, userID, processorRef string, chargesEnabled, payoutsEnabled, identityVerified bool) (Profile, error) {
	if _, err := s.repo.Create(ctx, userID); err != nil {
		return Profile{}, err
	}
	if err := s.repo.SetProcessorAccount(ctx, userID, processorRef, chargesEnabled, payoutsEnabled, identityVerified); err != nil {
		return Profile{}, err
	}
	return s.repo.GetByUserID(ctx, userID)
}
