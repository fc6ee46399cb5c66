package services

import (
	"context"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/shopspring/decimal"
)

// ApprovalDeciderSvc decides whether an action needs human sign-off.
type ApprovalDeciderSvc interface {
	// Decide evaluates the user's settings for the action. Policy outcomes are values, never errors.
	Decide(ctx context.Context, userID string, action domain.ActionType, estimatedAmount *decimal.Decimal) (*domain.ApprovalDecision, error)
}

// ApprovalSettingsSvc defines operations on a user's approval settings.
type ApprovalSettingsSvc interface {
	// GetSettings returns the user's settings, creating the defaults on first access.
	GetSettings(ctx context.Context, userID string) (*domain.ApprovalSettings, error)

	// UpdateSettings applies the provided fields. The timeout is clamped to its allowed range.
	UpdateSettings(ctx context.Context, userID string, req dto.UpdateApprovalSettingsRequest) (*domain.ApprovalSettings, error)
}

// ApprovalReaderSvc defines read operations for approval requests.
type ApprovalReaderSvc interface {
	// GetApproval returns the approval, flipping it to expired if it lapsed while pending.
	GetApproval(ctx context.Context, userID string, approvalID string) (*domain.PendingApproval, error)

	ListApprovals(ctx context.Context, userID string, params dto.ListApprovalsParams) (*dto.ListApprovalsResponse, error)
}

// ApprovalWriterSvc defines write operations for approval requests.
type ApprovalWriterSvc interface {
	// CreateApprovalRequest persists a pending approval with an expiry from the user's timeout.
	CreateApprovalRequest(ctx context.Context, userID string, req dto.CreateApprovalRequest) (*domain.PendingApproval, error)

	// ApproveAction resolves a pending approval as approved. Fails with apperrors.ErrApprovalExpired
	// once the expiry has passed and with apperrors.ErrApprovalAlreadyResolved on a terminal approval.
	ApproveAction(ctx context.Context, approvalID string, reviewerID string, notes *string) (*domain.PendingApproval, error)

	// RejectAction resolves a pending approval as rejected, with the same preconditions as ApproveAction.
	RejectAction(ctx context.Context, approvalID string, reviewerID string, notes *string) (*domain.PendingApproval, error)

	// ExpireStaleApprovals expires every lapsed pending approval and returns how many were flipped.
	ExpireStaleApprovals(ctx context.Context) (int, error)
}

// ApprovalObserver is told about every approval resolution.
type ApprovalObserver interface {
	OnApprovalResolved(ctx context.Context, approval domain.PendingApproval)
}

// ApprovalSvcFacade combines all approval-related service interfaces.
type ApprovalSvcFacade interface {
	ApprovalDeciderSvc
	ApprovalSettingsSvc
	ApprovalReaderSvc
	ApprovalWriterSvc

	// RegisterObserver adds an observer notified after each resolution.
	RegisterObserver(observer ApprovalObserver)
}

// SessionNotifier posts human-readable messages to the session an action originated from.
type SessionNotifier interface {
	PostMessage(ctx context.Context, sessionID string, text string) error
}
