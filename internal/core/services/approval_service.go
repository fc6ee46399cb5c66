package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
	portsrepo "github.com/SscSPs/agent_governance/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/agent_governance/internal/core/ports/services"
	"github.com/SscSPs/agent_governance/internal/dto"
	"github.com/SscSPs/agent_governance/internal/metrics"
	"github.com/SscSPs/agent_governance/internal/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type approvalService struct {
	BaseService
	settingsRepo portsrepo.ApprovalSettingsRepositoryFacade
	approvalRepo portsrepo.ApprovalRepositoryFacade
	notifier     portssvc.SessionNotifier

	mu        sync.RWMutex
	observers []portssvc.ApprovalObserver
}

// NewApprovalService creates the approval gate. notifier may be nil.
func NewApprovalService(
	settingsRepo portsrepo.ApprovalSettingsRepositoryFacade,
	approvalRepo portsrepo.ApprovalRepositoryFacade,
	notifier portssvc.SessionNotifier,
	options ...ServiceOption,
) portssvc.ApprovalSvcFacade {
	return &approvalService{
		BaseService:  newBaseService(options...),
		settingsRepo: settingsRepo,
		approvalRepo: approvalRepo,
		notifier:     notifier,
	}
}

var _ portssvc.ApprovalSvcFacade = (*approvalService)(nil)

func (s *approvalService) RegisterObserver(observer portssvc.ApprovalObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *approvalService) GetSettings(ctx context.Context, userID string) (*domain.ApprovalSettings, error) {
	settings, err := s.settingsRepo.GetOrCreateApprovalSettings(ctx, domain.DefaultApprovalSettings(userID, s.Now()))
	if err != nil {
		s.LogError(ctx, err, "Failed to load approval settings", slog.String("user_id", userID))
		return nil, err
	}
	return settings, nil
}

func (s *approvalService) UpdateSettings(ctx context.Context, userID string, req dto.UpdateApprovalSettingsRequest) (*domain.ApprovalSettings, error) {
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.RequireApproval != nil {
		settings.RequireApproval = *req.RequireApproval
	}
	for _, t := range []struct {
		in  *decimal.Decimal
		out *decimal.Decimal
	}{
		{req.InvoiceThreshold, &settings.InvoiceThreshold},
		{req.BillThreshold, &settings.BillThreshold},
		{req.JournalEntryThreshold, &settings.JournalEntryThreshold},
	} {
		if t.in == nil {
			continue
		}
		if t.in.IsNegative() {
			return nil, fmt.Errorf("%w: thresholds must not be negative", apperrors.ErrValidation)
		}
		*t.out = *t.in
	}
	if req.AutoApproveReadOnly != nil {
		settings.AutoApproveReadOnly = *req.AutoApproveReadOnly
	}
	if req.AllowedActions != nil {
		if settings.AllowedActions, err = actionList(*req.AllowedActions); err != nil {
			return nil, err
		}
	}
	if req.BlockedActions != nil {
		if settings.BlockedActions, err = actionList(*req.BlockedActions); err != nil {
			return nil, err
		}
	}
	if req.NotifyOnApprovalRequired != nil {
		settings.NotifyOnApprovalRequired = *req.NotifyOnApprovalRequired
	}
	if req.NotifyOnResolution != nil {
		settings.NotifyOnResolution = *req.NotifyOnResolution
	}
	if req.ApprovalTimeoutHours != nil {
		settings.ApprovalTimeoutHours = domain.ClampApprovalTimeoutHours(*req.ApprovalTimeoutHours)
	}
	settings.LastUpdatedAt = s.Now()
	settings.LastUpdatedBy = userID

	if err := s.settingsRepo.SaveApprovalSettings(ctx, *settings); err != nil {
		s.LogError(ctx, err, "Failed to save approval settings", slog.String("user_id", userID))
		return nil, err
	}
	s.LogInfo(ctx, "Approval settings updated", slog.String("user_id", userID))
	return settings, nil
}

// actionList validates a submitted allow or deny list. An empty list clears it.
func actionList(actions []domain.ActionType) ([]domain.ActionType, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	out := make([]domain.ActionType, 0, len(actions))
	for _, a := range actions {
		if !a.IsValid() {
			return nil, fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, a)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *approvalService) Decide(ctx context.Context, userID string, action domain.ActionType, estimatedAmount *decimal.Decimal) (*domain.ApprovalDecision, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, action)
	}
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	decision := decide(*settings, action, estimatedAmount)
	metrics.RecordApprovalDecision(action.String(), decision.RequiresApproval)
	s.LogDebug(ctx, "Approval decision",
		slog.String("user_id", userID),
		slog.String("action", action.String()),
		slog.Bool("requires_approval", decision.RequiresApproval),
		slog.String("reason", decision.Reason))
	return &decision, nil
}

// decide applies the gate rules in order. The first matching rule wins.
func decide(settings domain.ApprovalSettings, action domain.ActionType, amount *decimal.Decimal) domain.ApprovalDecision {
	if !settings.RequireApproval {
		return domain.ApprovalDecision{Reason: "Approval not required: full autonomy is enabled"}
	}
	if action.IsReadOnly() && settings.AutoApproveReadOnly {
		return domain.ApprovalDecision{Reason: "Read-only actions are auto-approved"}
	}
	if settings.IsBlocked(action) {
		return domain.ApprovalDecision{RequiresApproval: true, Reason: "Action is blocked and always requires approval"}
	}
	if !settings.IsAllowListed(action) {
		return domain.ApprovalDecision{RequiresApproval: true, Reason: "Action is not in the allowed actions list"}
	}
	if amount != nil {
		if threshold, ok := settings.ThresholdFor(action); ok && amount.GreaterThan(threshold) {
			return domain.ApprovalDecision{
				RequiresApproval: true,
				Reason:           fmt.Sprintf("Amount %s exceeds the %s approval threshold of %s", amount.String(), action.Category(), threshold.String()),
				Threshold:        &threshold,
			}
		}
	}
	return domain.ApprovalDecision{RequiresApproval: true, Reason: "Approval is required for agent actions"}
}

func (s *approvalService) CreateApprovalRequest(ctx context.Context, userID string, req dto.CreateApprovalRequest) (*domain.PendingApproval, error) {
	if !req.ActionType.IsValid() {
		return nil, fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, req.ActionType)
	}
	settings, err := s.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	payload := req.ActionPayload
	if payload == nil {
		payload = map[string]any{}
	}
	impact := req.EstimatedImpact
	if impact == nil {
		impact = domain.EstimatedImpact(req.ActionType, payload)
	}
	timeout := domain.ClampApprovalTimeoutHours(settings.ApprovalTimeoutHours)

	approval := domain.PendingApproval{
		ApprovalID:      uuid.NewString(),
		UserID:          userID,
		ActionType:      req.ActionType,
		ActionPayload:   payload,
		SessionID:       req.SessionID,
		WorkflowID:      req.WorkflowID,
		StepNumber:      req.StepNumber,
		Reasoning:       req.Reasoning,
		Confidence:      req.Confidence,
		Status:          domain.ApprovalPending,
		EstimatedImpact: impact,
		ExpiresAt:       now.Add(time.Duration(timeout) * time.Hour),
		CreatedAt:       now,
	}

	if err := s.approvalRepo.SaveApproval(ctx, approval); err != nil {
		s.LogError(ctx, err, "Failed to save approval request",
			slog.String("user_id", userID),
			slog.String("action", req.ActionType.String()))
		return nil, err
	}

	s.LogInfo(ctx, "Approval requested",
		slog.String("approval_id", approval.ApprovalID),
		slog.String("user_id", userID),
		slog.String("action", req.ActionType.String()))

	if settings.NotifyOnApprovalRequired && approval.SessionID != nil {
		s.notify(ctx, *approval.SessionID, approvalRequiredMessage(approval))
	}
	return &approval, nil
}

func (s *approvalService) GetApproval(ctx context.Context, userID string, approvalID string) (*domain.PendingApproval, error) {
	approval, err := s.approvalRepo.FindApprovalByID(ctx, approvalID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find approval", slog.String("approval_id", approvalID))
		}
		return nil, err
	}
	if approval.UserID != userID {
		return nil, fmt.Errorf("approval %s: %w", approvalID, apperrors.ErrNotFound)
	}
	if approval.IsExpiredAt(s.Now()) {
		if err := s.expire(ctx, approval); err != nil {
			return nil, err
		}
	}
	return approval, nil
}

func (s *approvalService) ListApprovals(ctx context.Context, userID string, params dto.ListApprovalsParams) (*dto.ListApprovalsResponse, error) {
	var status *domain.ApprovalStatus
	if params.Status != nil {
		st := domain.ApprovalStatus(*params.Status)
		status = &st
	}
	approvals, err := s.approvalRepo.ListApprovals(ctx, userID, status, params.Limit, params.Offset)
	if err != nil {
		s.LogError(ctx, err, "Failed to list approvals", slog.String("user_id", userID))
		return nil, err
	}

	now := s.Now()
	out := make([]domain.PendingApproval, 0, len(approvals))
	for i := range approvals {
		a := &approvals[i]
		if a.IsExpiredAt(now) {
			if err := s.expire(ctx, a); err != nil {
				return nil, err
			}
			// A pending filter must not return what was just expired.
			if status != nil && *status == domain.ApprovalPending {
				continue
			}
		}
		out = append(out, *a)
	}
	return &dto.ListApprovalsResponse{Approvals: out}, nil
}

func (s *approvalService) ApproveAction(ctx context.Context, approvalID string, reviewerID string, notes *string) (*domain.PendingApproval, error) {
	return s.resolve(ctx, approvalID, reviewerID, notes, domain.ApprovalApproved)
}

func (s *approvalService) RejectAction(ctx context.Context, approvalID string, reviewerID string, notes *string) (*domain.PendingApproval, error) {
	return s.resolve(ctx, approvalID, reviewerID, notes, domain.ApprovalRejected)
}

func (s *approvalService) resolve(ctx context.Context, approvalID, reviewerID string, notes *string, status domain.ApprovalStatus) (*domain.PendingApproval, error) {
	approval, err := s.approvalRepo.FindApprovalByID(ctx, approvalID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.LogError(ctx, err, "Failed to find approval", slog.String("approval_id", approvalID))
		}
		return nil, err
	}
	if approval.UserID != reviewerID {
		return nil, fmt.Errorf("approval %s belongs to another user: %w", approvalID, apperrors.ErrForbidden)
	}
	if approval.Status.IsTerminal() {
		return nil, apperrors.AlreadyResolved(string(approval.Status))
	}

	now := s.Now()
	if approval.IsExpiredAt(now) {
		if err := s.expire(ctx, approval); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("approval %s: %w", approvalID, apperrors.ErrApprovalExpired)
	}

	resolution := domain.ApprovalResolution{
		Status:     status,
		ReviewedBy: reviewerID,
		ReviewedAt: now,
		Notes:      notes,
	}
	ok, err := s.approvalRepo.ResolveApproval(ctx, approvalID, resolution)
	if err != nil {
		s.LogError(ctx, err, "Failed to resolve approval",
			slog.String("approval_id", approvalID),
			slog.String("status", string(status)))
		return nil, err
	}
	if !ok {
		// Lost the race to another reviewer or to expiry.
		current, err := s.approvalRepo.FindApprovalByID(ctx, approvalID)
		if err != nil {
			return nil, err
		}
		if current.IsExpiredAt(now) {
			if err := s.expire(ctx, current); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("approval %s: %w", approvalID, apperrors.ErrApprovalExpired)
		}
		return nil, apperrors.AlreadyResolved(string(current.Status))
	}

	approval.Status = status
	approval.ReviewedBy = &reviewerID
	approval.ReviewedAt = &now
	approval.ReviewNotes = notes
	metrics.RecordApprovalResolved(string(status))

	s.LogInfo(ctx, "Approval resolved",
		slog.String("approval_id", approvalID),
		slog.String("status", string(status)),
		slog.String("reviewer_id", reviewerID))

	s.afterResolution(ctx, *approval)
	return approval, nil
}

func (s *approvalService) ExpireStaleApprovals(ctx context.Context) (int, error) {
	count, err := s.approvalRepo.ExpirePendingBefore(ctx, s.Now())
	if err != nil {
		s.LogError(ctx, err, "Failed to expire stale approvals")
		return 0, err
	}
	metrics.RecordApprovalsExpired(count)
	s.LogInfo(ctx, "Expired stale approvals", slog.Int("count", count))
	return count, nil
}

// expire flips a lapsed pending approval to expired and updates approval in place.
func (s *approvalService) expire(ctx context.Context, approval *domain.PendingApproval) error {
	ok, err := s.approvalRepo.ExpireApproval(ctx, approval.ApprovalID)
	if err != nil {
		s.LogError(ctx, err, "Failed to expire approval", slog.String("approval_id", approval.ApprovalID))
		return err
	}
	if !ok {
		current, err := s.approvalRepo.FindApprovalByID(ctx, approval.ApprovalID)
		if err != nil {
			return err
		}
		*approval = *current
		return nil
	}
	approval.Status = domain.ApprovalExpired
	metrics.RecordApprovalResolved(string(domain.ApprovalExpired))
	s.LogInfo(ctx, "Approval expired", slog.String("approval_id", approval.ApprovalID))
	s.afterResolution(ctx, *approval)
	return nil
}

// afterResolution notifies the session and the observers. Failures are logged only.
func (s *approvalService) afterResolution(ctx context.Context, approval domain.PendingApproval) {
	if approval.SessionID != nil {
		settings, err := s.GetSettings(ctx, approval.UserID)
		if err == nil && settings.NotifyOnResolution {
			s.notify(ctx, *approval.SessionID, approvalResolvedMessage(approval))
		}
	}

	s.mu.RLock()
	observers := append([]portssvc.ApprovalObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range observers {
		o.OnApprovalResolved(ctx, approval)
	}
}

func (s *approvalService) notify(ctx context.Context, sessionID, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PostMessage(ctx, sessionID, text); err != nil {
		metrics.RecordNotification("failed")
		s.LogError(ctx, err, "Failed to notify session", slog.String("session_id", sessionID))
		return
	}
	metrics.RecordNotification("sent")
}

func approvalRequiredMessage(a domain.PendingApproval) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required: %s", a.ActionType.DisplayName())
	if a.EstimatedImpact != nil {
		fmt.Fprintf(&b, " for %s", utils.FormatWithCurrencyPrecision(a.EstimatedImpact.Amount, a.EstimatedImpact.Currency))
		if a.EstimatedImpact.Currency != "" {
			fmt.Fprintf(&b, " %s", a.EstimatedImpact.Currency)
		}
	}
	if a.Reasoning != "" {
		fmt.Fprintf(&b, ". Reason: %s", a.Reasoning)
	}
	fmt.Fprintf(&b, ". Approval ID: %s, expires %s.", a.ApprovalID, a.ExpiresAt.UTC().Format(time.RFC3339))
	return b.String()
}

func approvalResolvedMessage(a domain.PendingApproval) string {
	msg := fmt.Sprintf("%s request %s was %s.", a.ActionType.DisplayName(), a.ApprovalID, a.Status)
	if a.ReviewNotes != nil && *a.ReviewNotes != "" {
		msg += " Notes: " + *a.ReviewNotes
	}
	return msg
}
