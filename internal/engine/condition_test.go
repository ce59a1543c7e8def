package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"strict equal numbers", "5===5", true},
		{"strict equal differs", "5 === 6", false},
		{"strict number vs string", "5 === '5'", false},
		{"loose number vs string", "5 == '5'", true},
		{"not equal", "'a' != 'b'", true},
		{"strict not equal", "1 !== 1", false},
		{"quoted strings", "'ok' === 'ok'", true},
		{"double quoted", `"ok" === 'ok'`, true},
		{"escaped quote", `'it\'s' === "it's"`, true},
		{"less than", "3 < 10", true},
		{"greater than", "3 > 10", false},
		{"less or equal", "10 <= 10", true},
		{"greater or equal", "-2 >= -1", false},
		{"string ordering", "'apple' < 'banana'", true},
		{"boolean literal", "true", true},
		{"false literal", "false", false},
		{"negation", "!false", true},
		{"and", "1 < 2 && 'x' === 'x'", true},
		{"or", "1 > 2 || 2 > 1", true},
		{"parentheses", "!(1 === 2) && (true || false)", true},
		{"null equality", "null === null", true},
		{"truthy number", "0", false},
		{"truthy string", "'x'", true},
		{"float", "0.1 < 0.2", true},
		{"bool vs bool", "true === true", true},
		{"precedence and over or", "true || false && false", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateCondition_Errors(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		target error
	}{
		{"empty", "   ", ErrConditionSyntax},
		{"unresolved placeholder", "{{$vars.x}}===5", ErrConditionSyntax},
		{"identifier", "x === 5", ErrConditionSyntax},
		{"code injection", "process.exit(1)", ErrConditionSyntax},
		{"unterminated string", "'abc === 'abc'", ErrConditionSyntax},
		{"dangling operator", "5 ===", ErrConditionSyntax},
		{"missing paren", "(1 === 1", ErrConditionSyntax},
		{"trailing tokens", "1 === 1 2", ErrConditionSyntax},
		{"mixed ordering", "1 < 'a'", ErrConditionType},
		{"bool ordering", "true < false", ErrConditionType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateCondition(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestEvaluateCondition_AfterQuotedResolution(t *testing.T) {
	wctx := testContext(map[string]any{"x": 5, "status": "ok"})

	expr, misses := ResolveString("{{$vars.x}}===5 && {{$vars.status}} === 'ok'", wctx, ModeQuoted)
	require.Empty(t, misses)
	assert.Equal(t, "5===5 && 'ok' === 'ok'", expr)

	got, err := EvaluateCondition(expr)
	require.NoError(t, err)
	assert.True(t, got)
}
