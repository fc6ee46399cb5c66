package dto

import (
	"sync"

	"github.com/SscSPs/agent_governance/internal/core/domain"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags used by request DTOs:
// "actiontype" accepts only known action names, "approvalstatus" and "workflowstatus" only known statuses.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err = v.RegisterValidation("actiontype", validateActionType); err != nil {
			return
		}
		if err = v.RegisterValidation("approvalstatus", validateApprovalStatus); err != nil {
			return
		}
		err = v.RegisterValidation("workflowstatus", validateWorkflowStatus)
	})
	return err
}

func validateActionType(fl validator.FieldLevel) bool {
	return domain.ActionType(fl.Field().String()).IsValid()
}

func validateApprovalStatus(fl validator.FieldLevel) bool {
	switch domain.ApprovalStatus(fl.Field().String()) {
	case domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected, domain.ApprovalExpired:
		return true
	}
	return false
}

func validateWorkflowStatus(fl validator.FieldLevel) bool {
	return domain.WorkflowStatus(fl.Field().String()).IsValid()
}
