package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_MasksSensitiveKeysCaseInsensitively(t *testing.T) {
	input := map[string]interface{}{
		"Password":      "secret",
		"API_KEY":       "abc123",
		"host":          "db.internal",
		"authorization": "Bearer xyz",
	}

	got := Redact(input)

	assert.Equal(t, "***", got["Password"])
	assert.Equal(t, "***", got["API_KEY"])
	assert.Equal(t, "***", got["authorization"])
	assert.Equal(t, "db.internal", got["host"])
}

func TestRedact_NilValueLeftUntouched(t *testing.T) {
	got := Redact(map[string]interface{}{"token": nil})
	assert.Nil(t, got["token"])
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	input := map[string]interface{}{"password": "secret"}
	_ = Redact(input)
	assert.Equal(t, "secret", input["password"])
}
