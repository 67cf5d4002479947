package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "worker", "migrate", "enrich", "import", "export", "status", "retry-failed"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leads", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	workers := serveCmd.Flags().Lookup("workers")
	require.NotNil(t, workers, "serve command should have --workers flag")
	assert.Equal(t, "false", workers.DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "company", "file-id"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s flag", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "csv", flag.DefValue)

	out := exportCmd.Flags().ShorthandLookup("o")
	require.NotNil(t, out)
	assert.Equal(t, "out", out.Name)
}

func TestRequiredFileIDFlags(t *testing.T) {
	assert.NotNil(t, retryFailedCmd.Flags().Lookup("file-id"))
	assert.NotNil(t, exportCmd.Flags().Lookup("file-id"))
	assert.NotNil(t, statusCmd.Flags().Lookup("file-id"))
	assert.NotNil(t, importCmd.Flags().Lookup("csv"))
}

func TestApplyLogFlags(t *testing.T) {
	defer func() { logLevel, logFormat = "", "" }()

	lc := config.LogConfig{Level: "info", Format: "json"}
	applyLogFlags(&lc)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, lc)

	logLevel, logFormat = "debug", "console"
	applyLogFlags(&lc)
	assert.Equal(t, config.LogConfig{Level: "debug", Format: "console"}, lc)
}
