package validate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct validates s and flattens field errors into one readable message.
func Struct(s interface{}) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if ok := asValidationErrors(err, &fields); !ok {
		return err
	}
	parts := make([]string, 0, len(fields))
	for _, fe := range fields {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", strings.ToLower(fe.Field()), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(parts, "; "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fields, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fields
	}
	return ok
}
