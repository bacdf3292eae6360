package expressions

import (
	"testing"

	"github.com/rendis/nodeflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	scope := NewScope(
		[]any{12.5, map[string]any{"unit": "kg"}},
		map[string]any{"label": "Total", "precision": 2, "a.b": "dotted"},
	).WithNode(map[string]any{"id": "n1"})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain text", "no refs", "no refs"},
		{"value", "${{value}}", "12.5"},
		{"mixed", "${{params.label}}: ${{ value }} ${{inputs.1.unit}}", "Total: 12.5 kg"},
		{"int param", "p=${{params.precision}}", "p=2"},
		{"dotted key", "${{params.a.b}}", "dotted"},
		{"node meta", "[${{node.id}}]", "[n1]"},
		{"object encoded", "${{inputs.1}}", `{"unit":"kg"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Interpolate(tt.template, scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestInterpolate_Errors(t *testing.T) {
	scope := NewScope([]any{1.0}, map[string]any{"x": 1})

	tests := []struct {
		name     string
		template string
	}{
		{"unclosed", "${{value"},
		{"empty", "${{ }}"},
		{"nested", "${{ ${{value}} }}"},
		{"unknown namespace", "${{steps.a}}"},
		{"missing param", "${{params.y}}"},
		{"input out of range", "${{inputs.3}}"},
		{"bare inputs", "${{inputs}}"},
		{"traverse scalar", "${{value.field}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Interpolate(tt.template, scope)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeInterpolation))
		})
	}
}

func TestHasInterpolation(t *testing.T) {
	assert.True(t, HasInterpolation("x ${{value}}"))
	assert.False(t, HasInterpolation("x {value}"))
}

func TestValidateTemplate(t *testing.T) {
	assert.NoError(t, ValidateTemplate("plain"))
	assert.NoError(t, ValidateTemplate("${{value}} ${{params.unit}}"))

	for _, bad := range []string{"${{value", "${{}}", "${{steps.x}}", "${{ ${{value}} }}"} {
		err := ValidateTemplate(bad)
		require.Error(t, err, bad)
		assert.True(t, schema.IsCode(err, schema.ErrCodeInterpolation))
	}
}
