package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"clinical-dss-be/internal/pkg/apperr"
)

var validate = validator.New()

// ValidateRequest runs struct-tag validation and maps failures to a
// client-safe validation error.
func ValidateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, ve := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", ve.Field(), ve.Tag()))
			}
		}
		return apperr.Wrap(apperr.KindValidation,
			"invalid request: "+strings.Join(fields, ", "), err)
	}
	return nil
}
