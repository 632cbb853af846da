package services

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/go-playground/validator/v10"
)

// identityPattern keeps identities usable as a single key segment: no '/',
// no whitespace, at most 64 characters.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@+-]{0,63}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names ("user_id", "mobile") instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		return identityPattern.MatchString(fl.Field().String())
	})

	return v
}

// validationError maps validator output onto the error taxonomy: a missing
// required field is common.ErrMissingField, anything else
// common.ErrInvalidField. The first failing field is named.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return fmt.Errorf("%w: %v", common.ErrInvalidField, err)
	}

	fe := ve[0]
	if fe.Tag() == "required" {
		return fmt.Errorf("%w: %s", common.ErrMissingField, fe.Field())
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidField, fe.Field())
}
