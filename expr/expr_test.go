package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	t.Parallel()
	tcs := []struct {
		name string
		expr string
		vars Vars
		want float64
	}{
		{name: "literal", expr: "2", want: 2},
		{name: "add_sub", expr: "2+3-1", want: 4},
		{name: "precedence", expr: "2+3*4", want: 14},
		{name: "parens", expr: "(2+3)*4", want: 20},
		{name: "unary_minus", expr: "-2*3", want: -6},
		{name: "power_right_assoc", expr: "2^3^2", want: 512},
		{name: "variable", expr: "i+1", vars: Vars{"i": 4}, want: 5},
		{name: "function", expr: "sin(0)", want: 0},
		{name: "function_var", expr: "2*i", vars: Vars{"i": 2.5}, want: 5},
		{name: "tan", expr: "tan(0)", want: 0},
		{name: "pow", expr: "pow(2,10)", want: 1024},
		{name: "log", expr: "log(1)", want: 0},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Eval(tc.expr, tc.vars)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	t.Parallel()
	tcs := []string{"1/0", "i", "2+", "(1+2", "foo(1)", "pow(1)"}
	for _, e := range tcs {
		t.Run(e, func(t *testing.T) {
			_, err := Eval(e, nil)
			assert.Error(t, err)
		})
	}
}

func TestIsNumberString(t *testing.T) {
	t.Parallel()
	assert.True(t, IsNumberString("12"))
	assert.False(t, IsNumberString("-1"))
	assert.False(t, IsNumberString(""))
	assert.False(t, IsNumberString("1.5"))
}
