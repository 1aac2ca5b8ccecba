package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConditionAndEvaluateString(t *testing.T) {
	cond, err := ParseCondition("environment == 'prod'")
	require.NoError(t, err)
	require.Equal(t, "environment", cond.Variable)
	require.Equal(t, OpEqual, cond.Operator)
	require.Equal(t, "prod", cond.Value)

	ok, err := cond.Evaluate(map[string]string{"environment": "prod"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cond.Evaluate(map[string]string{"environment": "staging"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateNumericComparison(t *testing.T) {
	cond, err := ParseCondition("retries >= 3")
	require.NoError(t, err)

	ok, err := cond.Evaluate(map[string]string{"retries": "5"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cond.Evaluate(map[string]string{"retries": "1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateUnsetVariableComparesEmpty(t *testing.T) {
	cond, err := ParseCondition("flavor != 'vanilla'")
	require.NoError(t, err)

	ok, err := cond.Evaluate(map[string]string{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestParseConditionRejectsUnrecognizedFormat(t *testing.T) {
	_, err := ParseCondition("children(step).all(status == 'complete')")
	require.Error(t, err)
}
