package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, RoleSuperAdmin.AtLeast(RoleAdministrator))
	assert.True(t, RoleAdministrator.AtLeast(RoleAdministrator))
	assert.True(t, RoleOperator.AtLeast(RoleGatekeeper))
	assert.False(t, RoleGatekeeper.AtLeast(RoleOperator))
	assert.False(t, RoleReadOnly.AtLeast(RoleGatekeeper))
	assert.True(t, RoleReadOnly.AtLeast(RoleReadOnly))
	assert.False(t, Role("root").AtLeast(RoleReadOnly))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Operator ")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, r)

	_, err = ParseRole("root")
	require.Error(t, err)
}
