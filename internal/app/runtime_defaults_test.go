package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRuntimeDefaultsGeneratesMissingSecrets(t *testing.T) {
	cfg := &Config{}

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.JWT.Secret, jwtSecretBytes*2)
	require.True(t, generated["auth.jwt.secret"])
}

func TestApplyRuntimeDefaultsPreservesExistingSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Auth.JWT.Secret = strings.Repeat("a", 10)

	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, strings.Repeat("a", 10), cfg.Auth.JWT.Secret)
}

func TestApplyRuntimeDefaultsNilConfig(t *testing.T) {
	_, err := ApplyRuntimeDefaults(nil)
	require.ErrorContains(t, err, "config is nil")
}
