package repositories

import (
	"context"
	"time"

	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// ApprovalSettingsReader defines read operations for approval settings.
type ApprovalSettingsReader interface {
	// FindApprovalSettings returns apperrors.ErrNotFound when the user has no settings row yet.
	FindApprovalSettings(ctx context.Context, userID string) (*domain.ApprovalSettings, error)
}

// ApprovalSettingsWriter defines write operations for approval settings.
type ApprovalSettingsWriter interface {
	// GetOrCreateApprovalSettings inserts defaults if no row exists and returns the stored row.
	GetOrCreateApprovalSettings(ctx context.Context, defaults domain.ApprovalSettings) (*domain.ApprovalSettings, error)

	// SaveApprovalSettings overwrites the user's settings.
	SaveApprovalSettings(ctx context.Context, settings domain.ApprovalSettings) error
}

// ApprovalSettingsRepositoryFacade combines all approval settings repository interfaces.
type ApprovalSettingsRepositoryFacade interface {
	ApprovalSettingsReader
	ApprovalSettingsWriter
}

// ApprovalReader defines read operations for pending approvals.
type ApprovalReader interface {
	FindApprovalByID(ctx context.Context, approvalID string) (*domain.PendingApproval, error)

	// ListApprovals returns the user's approvals, newest first. A nil status lists every status.
	ListApprovals(ctx context.Context, userID string, status *domain.ApprovalStatus, limit, offset int) ([]domain.PendingApproval, error)
}

// ApprovalWriter defines write operations for pending approvals.
type ApprovalWriter interface {
	SaveApproval(ctx context.Context, approval domain.PendingApproval) error

	// ResolveApproval applies the resolution only while the approval is still pending.
	// It reports false when another caller resolved or expired it first.
	ResolveApproval(ctx context.Context, approvalID string, resolution domain.ApprovalResolution) (bool, error)

	// ExpireApproval flips a pending approval to expired. It reports false if it was no longer pending.
	ExpireApproval(ctx context.Context, approvalID string) (bool, error)

	// ExpirePendingBefore expires every pending approval whose expiry is at or before now and returns the count.
	ExpirePendingBefore(ctx context.Context, now time.Time) (int, error)
}

// ApprovalRepositoryFacade combines all approval repository interfaces.
type ApprovalRepositoryFacade interface {
	ApprovalReader
	ApprovalWriter
}
