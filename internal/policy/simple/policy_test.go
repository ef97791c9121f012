package simple

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderPolicySpendsAllowance(t *testing.T) {
	t.Parallel()

	policy := NewRenderPolicy(2)
	require.True(t, policy.AllowRender("ec.europa.eu"))
	require.True(t, policy.AllowRender("www.ecb.europa.eu"))
	require.False(t, policy.AllowRender("ec.europa.eu"))

	byHost := policy.RendersByHost()
	require.Equal(t, 1, byHost["ec.europa.eu"])
	require.Equal(t, 1, byHost["www.ecb.europa.eu"])
}

func TestRenderPolicyUnlimited(t *testing.T) {
	t.Parallel()

	policy := NewRenderPolicy(-1)
	for i := 0; i < 100; i++ {
		require.True(t, policy.AllowRender("ec.europa.eu"))
	}
	require.Equal(t, 100, policy.RendersByHost()["ec.europa.eu"])
}

func TestRenderPolicyDefaultAllowance(t *testing.T) {
	t.Parallel()

	policy := NewRenderPolicy(0)
	for i := 0; i < defaultRenderAllowance; i++ {
		require.True(t, policy.AllowRender("host"), "render %d", i)
	}
	require.False(t, policy.AllowRender("host"))
}
