package entitlement

import (
	"context"
	"time"

	"urlwarden/internal/domain"
	"urlwarden/internal/ports"
)

// opTimeout bounds every persistence call the gate makes, independent of the
// fetch time budget. Entitlement checks fail rather than hang on a stalled
// backend.
const opTimeout = 5 * time.Second

// Service gates analysis on subscription and group-approval records. It holds
// only a read-through view; the persistence tier owns the durable records.
type Service struct {
	ents   ports.EntitlementRepository
	groups ports.GroupRepository
	nowFn  func() time.Time
}

func New(ents ports.EntitlementRepository, groups ports.GroupRepository) *Service {
	return &Service{ents: ents, groups: groups, nowFn: time.Now}
}

// WithClock fixes the expiry clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFn = now
	return s
}

// Authorize allows a request when the requester holds a non-expired
// individual record, or when the request originates in an approved group.
// A persistence failure is fatal to the check and surfaced directly.
func (s *Service) Authorize(ctx context.Context, requesterID, groupID string) (domain.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec, found, err := s.ents.ReadEntitlement(ctx, requesterID)
	if err != nil {
		return domain.Decision{}, err
	}
	if found && rec.ActiveAt(s.nowFn()) {
		return domain.Decision{Allowed: true}, nil
	}
	if groupID != "" {
		approved, err := s.groups.IsGroupApproved(ctx, groupID)
		if err != nil {
			return domain.Decision{}, err
		}
		if approved {
			return domain.Decision{Allowed: true}, nil
		}
	}
	reason := domain.ReasonNoSubscription
	switch {
	case found:
		reason = domain.ReasonSubscriptionExpired
	case groupID != "":
		reason = domain.ReasonGroupNotApproved
	}
	return domain.Decision{Allowed: false, Reason: reason}, nil
}

// Grant writes an individual subscription for subject lasting d from now.
// Write failures here are correctness issues and are returned, not dropped.
func (s *Service) Grant(ctx context.Context, subject string, d time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	expires := s.nowFn().Add(d).UTC()
	return s.ents.WriteEntitlement(ctx, domain.EntitlementRecord{
		Subject:   subject,
		Kind:      domain.KindIndividual,
		ExpiresAt: &expires,
	})
}

// ApproveGroup marks a group as approved indefinitely.
func (s *Service) ApproveGroup(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.groups.ApproveGroup(ctx, groupID)
}

// RevokeGroup removes a group approval.
func (s *Service) RevokeGroup(ctx context.Context, groupID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.groups.RevokeGroup(ctx, groupID)
}
