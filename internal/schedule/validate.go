package schedule

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := ParseClock(fl.Field().String())
		return err == nil
	})
	// Interval schedules are picked in half-hour steps.
	_ = v.RegisterValidation("halfhour", func(fl validator.FieldLevel) bool {
		return math.Mod(fl.Field().Float()*2, 1) == 0
	})
	return v
}

// Validate reports whether p's parameters fit its kind.
func Validate(p Params) error {
	if p == nil {
		return fmt.Errorf("%w: no parameters", ErrInvalidScheduleParameters)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidScheduleParameters, p.Kind(), err)
	}
	return nil
}
