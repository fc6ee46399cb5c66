// Package executor routes workflow step actions to the code that performs them.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SscSPs/agent_governance/internal/apperrors"
	"github.com/SscSPs/agent_governance/internal/core/domain"
)

// Handler performs one action.
type Handler interface {
	Handle(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error)

func (f HandlerFunc) Handle(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error) {
	return f(ctx, action, parameters)
}

// Registry maps actions to handlers. Its Execute method has the shape of the workflow engine's executor.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.ActionType]Handler
}

// NewRegistry returns a registry with the read-only actions already handled.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[domain.ActionType]Handler{}}
	for _, action := range domain.AllActionTypes() {
		if action.IsReadOnly() {
			r.handlers[action] = HandlerFunc(readOnly)
		}
	}
	return r
}

// Register sets the handler for action, replacing any previous one.
func (r *Registry) Register(action domain.ActionType, h Handler) error {
	if !action.IsValid() {
		return fmt.Errorf("%w: unknown action type %q", apperrors.ErrValidation, action)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
	return nil
}

// RegisterMutations sets h for every action that changes financial records.
func (r *Registry) RegisterMutations(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, action := range domain.AllActionTypes() {
		if !action.IsReadOnly() {
			r.handlers[action] = h
		}
	}
}

// Execute runs the handler registered for action.
func (r *Registry) Execute(ctx context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error) {
	r.mu.RLock()
	h, ok := r.handlers[action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no handler registered for action %s", action)
	}
	return h.Handle(ctx, action, parameters)
}

// readOnly acknowledges a read action. The agent fetches the data through its own tools; the
// step exists so the read is gated, counted and audited like any other action.
func readOnly(_ context.Context, action domain.ActionType, parameters map[string]any) (*domain.ExecutionResult, error) {
	return &domain.ExecutionResult{
		Output: map[string]any{
			"action":     string(action),
			"parameters": parameters,
			"observedAt": time.Now().UTC().Format(time.RFC3339),
		},
		Direction:  domain.DirectionNone,
		Reversible: domain.ReversibleNo,
	}, nil
}
