package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"ai-intent-chat-be/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRequest checks the validate tags of req and reports every failing
// field in one InvalidRequest error.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.Wrap(apperror.KindInvalidRequest, "ValidateRequest", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return apperror.New(apperror.KindInvalidRequest, "ValidateRequest", strings.Join(msgs, "; "))
}
