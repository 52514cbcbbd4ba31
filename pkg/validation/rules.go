package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/office-requisition/internal/domain/workflow"
)

func registerRules(v *validator.Validate) error {
	if err := v.RegisterValidation("nonblank", isNonBlank); err != nil {
		return err
	}
	if err := v.RegisterValidation("requisition_status", isRequisitionStatus); err != nil {
		return err
	}
	return nil
}

// isNonBlank rejects strings made only of whitespace
func isNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// isRequisitionStatus accepts an empty value or one of the lifecycle states
func isRequisitionStatus(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || workflow.State(s).IsValid()
}
