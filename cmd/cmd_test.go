package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	found, _, err := rootCmd.Find([]string{"migrate", "version"})
	require.NoError(t, err)
	assert.Equal(t, "version", found.Name())

	found, _, err = rootCmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, found.Flags().Lookup("migrate"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("env-file"))
}

func TestLoadConfig_MissingEnvironment(t *testing.T) {
	envFile = "does-not-exist.env"
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("SUPABASE_JWT_SECRET", "")
	t.Setenv("user", "")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}
