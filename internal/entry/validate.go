package entry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	lerrors "github.com/learnerinfo/lis/internal/errors"
	"github.com/learnerinfo/lis/pkg/types"
)

// newValidator returns a validator that knows the enrollment vocabulary.
func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "schoolyear", func(fl validator.FieldLevel) bool {
		_, err := types.ParseSchoolYear(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "grade", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseGrade(fl.Field().String())
		return ok
	})
	mustRegister(v, "strand", func(fl validator.FieldLevel) bool {
		_, ok := types.StrandByLabel(fl.Field().String())
		return ok
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("entry: register %q validation: %v", tag, err))
	}
}

// fieldCodes maps the first failing field to the error code reported.
var fieldCodes = map[string]string{
	"Count":  lerrors.CodeInvalidCount,
	"Year":   lerrors.CodeInvalidYear,
	"Grade":  lerrors.CodeInvalidGrade,
	"Gender": lerrors.CodeInvalidGender,
	"Strand": lerrors.CodeInvalidGrade,
}

// validationError converts validator output into a VALIDATION error whose
// details map each failing field to its tag.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return lerrors.NewValidationError(lerrors.CodeMissingField, "invalid submission")
	}

	details := make(map[string]interface{}, len(ve))
	fields := make([]string, 0, len(ve))
	code := lerrors.CodeMissingField
	for i, fe := range ve {
		details[fe.Field()] = fe.Tag()
		fields = append(fields, strings.ToLower(fe.Field()))
		if i == 0 && fe.Tag() != "required" {
			if c, ok := fieldCodes[fe.Field()]; ok {
				code = c
			}
		}
	}

	msg := "invalid " + strings.Join(fields, ", ")
	if code == lerrors.CodeMissingField {
		msg = "missing or invalid " + strings.Join(fields, ", ")
	}
	return lerrors.NewValidationError(code, msg).WithDetails(details)
}
