package guard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/guard"
)

func TestEvalTrue(t *testing.T) {
	c, err := guard.Compile(`event.nodeId === "alpha" && flags.unlocked === true`)
	require.NoError(t, err)

	res := c.Eval(map[string]interface{}{"nodeId": "alpha"}, map[string]interface{}{"unlocked": true})
	assert.True(t, res.Value)
	assert.NoError(t, res.EvalError)
}

func TestEvalFalse(t *testing.T) {
	c, err := guard.Compile(`event.nodeId === "beta"`)
	require.NoError(t, err)

	res := c.Eval(map[string]interface{}{"nodeId": "alpha"}, map[string]interface{}{})
	assert.False(t, res.Value)
}

func TestCompileErrorIsReturned(t *testing.T) {
	_, err := guard.Compile(`this is not ( valid js`)
	assert.Error(t, err)
}

func TestTruthyNilGuardFires(t *testing.T) {
	assert.True(t, guard.Truthy(nil, nil, nil))
}

func TestTruthyFoldsErrorToFalse(t *testing.T) {
	c, err := guard.Compile(`undefinedVariable.prop`)
	require.NoError(t, err)
	assert.False(t, guard.Truthy(c, map[string]interface{}{}, map[string]interface{}{}))
}

func TestEvalNonBooleanCoercesViaToBoolean(t *testing.T) {
	c, err := guard.Compile(`1`)
	require.NoError(t, err)
	res := c.Eval(map[string]interface{}{}, map[string]interface{}{})
	assert.True(t, res.Value)
}
