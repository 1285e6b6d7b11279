package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonnyWalker81/cyclesense/backend/internal/models"
)

func resetGenerateFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		for _, name := range []string{"force", "max", "strategy", "include-expired"} {
			f := generateCmd.Flags().Lookup(name)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
}

func TestGenerateOptionsFromFlags(t *testing.T) {
	resetGenerateFlags(t)
	flags := generateCmd.Flags()
	require.NoError(t, flags.Set("force", "true"))
	require.NoError(t, flags.Set("max", "4"))
	require.NoError(t, flags.Set("strategy", "enhanced"))
	require.NoError(t, flags.Set("include-expired", "true"))

	opts, err := generateOptions()
	require.NoError(t, err)
	assert.Equal(t, models.GenerateOptions{
		MaxInsights:    4,
		ForceRefresh:   true,
		IncludeExpired: true,
		Strategy:       models.StrategyEnhanced,
	}, opts)
}

func TestGenerateOptionsDefaults(t *testing.T) {
	resetGenerateFlags(t)

	opts, err := generateOptions()
	require.NoError(t, err)
	assert.False(t, opts.IncludeExpired)
	assert.False(t, opts.ForceRefresh)
	assert.Equal(t, models.Strategy(""), opts.Strategy)
}

func TestGenerateOptionsRejectsUnknownStrategy(t *testing.T) {
	resetGenerateFlags(t)
	require.NoError(t, generateCmd.Flags().Set("strategy", "guess"))

	_, err := generateOptions()
	assert.ErrorContains(t, err, `unknown strategy "guess"`)
}
