package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCommand_WritesDocumentToOutputFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dockerfile := filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(dockerfile, []byte("FROM nginx:alpine\nEXPOSE 80\n"), 0o644))
	output := filepath.Join(dir, "goss.yaml")

	app := NewApp()
	err := app.Run(context.Background(), []string{
		"dgossgen", "generate", "--output", output, dockerfile,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tcp:80")
}

func TestGenerateCommand_RejectsUnknownProfile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dockerfile := filepath.Join(dir, "Dockerfile")
	require.NoError(t, os.WriteFile(dockerfile, []byte("FROM alpine:3.18\nRUN echo hi\n"), 0o644))

	app := NewApp()
	err := app.Run(context.Background(), []string{
		"dgossgen", "generate", "--profile", "paranoid", dockerfile,
	})
	require.Error(t, err)
}

func TestParseBuildArgs(t *testing.T) {
	t.Parallel()

	args, err := parseBuildArgs([]string{"VERSION=1.2.3", "DEBUG=true"})
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", args["VERSION"])
	assert.Equal(t, "true", args["DEBUG"])

	_, err = parseBuildArgs([]string{"no-equals-sign"})
	require.Error(t, err)
}
