package validate

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `validate:"notblank"`
	Role string `validate:"omitempty,role"`
}

func TestRules(t *testing.T) {
	v := validator.New()
	require.NoError(t, RegisterOn(v))

	assert.NoError(t, v.Struct(sample{Name: "Oscilloscope"}))
	assert.Error(t, v.Struct(sample{Name: "   \t"}))
	assert.NoError(t, v.Struct(sample{Name: "x", Role: "admin"}))
	assert.Error(t, v.Struct(sample{Name: "x", Role: "root"}))
}
