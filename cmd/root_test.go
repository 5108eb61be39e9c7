package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"run", "regions", "stations", "isochrone", "runs", "serve", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "isoreach", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"regions", "output", "no-store", "fail-fast"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("fail-fast").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	require.NotNil(t, serveCmd.Flags().Lookup("run"))
}

func TestIsochroneCommand_Flags(t *testing.T) {
	for _, name := range []string{"lon", "lat", "minutes"} {
		require.NotNil(t, isochroneCmd.Flags().Lookup(name))
	}
}

func TestRunsCommand_HasShow(t *testing.T) {
	var found bool
	for _, c := range runsCmd.Commands() {
		if c.Name() == "show" {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, "20", runsCmd.Flags().Lookup("limit").DefValue)
}
