package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "clubgate/pkg/domain-errors"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", hash)
	assert.True(t, h.Matches(hash, "secret123"))
	assert.False(t, h.Matches(hash, "secret124"))
	assert.False(t, h.Matches("not-a-hash", "secret123"))

	_, err = h.Hash(strings.Repeat("a1", 40))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeWeakPassword))
}

func TestEqualizeCostsAsMuchAsARealCheck(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"configured cost", bcrypt.MinCost + 1, bcrypt.MinCost + 1},
		{"out of range falls back", bcrypt.MaxCost + 1, bcrypt.DefaultCost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHasher(tt.cost)
			cost, err := bcrypt.Cost(h.dummy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cost)

			hash, err := h.Hash("secret123")
			require.NoError(t, err)
			hashCost, err := bcrypt.Cost([]byte(hash))
			require.NoError(t, err)
			assert.Equal(t, hashCost, cost)
			assert.NotPanics(t, func() { h.Equalize("anything") })
		})
	}
}

func TestCheckStrength(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"abc12345", true},
		{"contraseña1", true},
		{"abc1234", false},
		{"abcdefgh", false},
		{"12345678", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := CheckStrength(tt.password)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeWeakPassword))
		})
	}
}
