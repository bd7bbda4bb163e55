package validate

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type symptomReq struct {
	Name     string `validate:"required"`
	Severity int    `validate:"min=1,max=10"`
	Tier     string `validate:"risk_tier"`
}

type ruleReq struct {
	Action string `validate:"trigger_action"`
}

func TestValidator_RiskTier(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		req     symptomReq
		isValid bool
	}{
		{"valid_critical", symptomReq{Name: "chest pain", Severity: 9, Tier: "critical"}, true},
		{"empty_tier_defaults_later", symptomReq{Name: "cough", Severity: 2}, true},
		{"unknown_tier", symptomReq{Name: "cough", Severity: 2, Tier: "extreme"}, false},
		{"severity_too_high", symptomReq{Name: "cough", Severity: 11, Tier: "low"}, false},
		{"missing_name", symptomReq{Severity: 3, Tier: "low"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.isValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidator_TriggerAction(t *testing.T) {
	v := New()
	assert.NoError(t, v.Validate(ruleReq{Action: "ER"}))
	assert.NoError(t, v.Validate(ruleReq{Action: "Clinic"}))
	assert.NoError(t, v.Validate(ruleReq{Action: "Home"}))
	assert.Error(t, v.Validate(ruleReq{Action: "emergency"}))
	assert.Error(t, v.Validate(ruleReq{}))
}

func TestValidator_ReturnsBadRequest(t *testing.T) {
	err := New().Validate(ruleReq{Action: "nope"})
	require.Error(t, err)

	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "Action")
}
