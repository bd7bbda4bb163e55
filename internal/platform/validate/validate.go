package validate

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var (
	riskTiers      = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
	triggerActions = map[string]bool{"ER": true, "Clinic": true, "Home": true}
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	v.RegisterValidation("risk_tier", validateRiskTier)
	v.RegisterValidation("trigger_action", validateTriggerAction)

	return &Validator{validate: v}
}

// Validate returns a 400 HTTPError describing the first failing field.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			fe := errs[0]
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+fe.Field()+": failed "+fe.Tag())
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// risk_tier accepts an empty value so that the default tier can be applied later.
func validateRiskTier(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || riskTiers[s]
}

func validateTriggerAction(fl validator.FieldLevel) bool {
	return triggerActions[fl.Field().String()]
}
