package checkpoint

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Run IDs become part of badger keys, so they may not contain '/'.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

var (
	runIDOnce      sync.Once
	runIDValidator *validator.Validate
)

func runIDValidatorInstance() *validator.Validate {
	runIDOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("run_id", func(fl validator.FieldLevel) bool {
			return runIDPattern.MatchString(fl.Field().String())
		})
		runIDValidator = v
	})
	return runIDValidator
}

// ValidateRunID reports whether id can name a run in the store: 1 to 128
// letters, digits, '_', '.' or '-', starting with a letter or digit.
func ValidateRunID(id string) error {
	if id == "" {
		return errors.New("run id is empty")
	}
	if err := runIDValidatorInstance().Var(id, "max=128,run_id"); err != nil {
		return fmt.Errorf("invalid run id %q: use up to 128 letters, digits, '_', '.' or '-'", id)
	}
	return nil
}
