package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	flags := pflag.NewFlagSet("liquidator", pflag.ContinueOnError)
	addFlags(flags)
	require.NoError(t, flags.Parse([]string{"--keypath", "~/ops.json", "--endpoint", "http://127.0.0.1:8899", "-v"}))

	overrides, err := parseFlags(flags)
	require.NoError(t, err)
	require.Equal(t, "~/ops.json", overrides.KeypairPath)
	require.Equal(t, "http://127.0.0.1:8899", overrides.RPCURL)
	require.True(t, overrides.Verbose)
}

func TestParseFlagsDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("liquidator", pflag.ContinueOnError)
	addFlags(flags)
	require.NoError(t, flags.Parse(nil))

	overrides, err := parseFlags(flags)
	require.NoError(t, err)
	require.Empty(t, overrides.KeypairPath)
	require.Empty(t, overrides.RPCURL)
	require.False(t, overrides.Verbose)
}
