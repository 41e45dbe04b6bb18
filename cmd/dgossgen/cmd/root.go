package cmd

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wharflab/dgossgen/internal/version"
)

// NewApp builds the dgossgen command tree: generate is the primary
// command, version reports build metadata.
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "dgossgen",
		Usage:   "Generate a goss runtime contract from a Dockerfile",
		Version: version.Version(),
		Description: `dgossgen reads a Dockerfile, reduces it to a Runtime Contract Model
(ports, processes, files, users, and commands it expects the built image to
exhibit at runtime), and emits goss-style YAML assertions plus an optional
wait-file. It never builds or runs the image itself.`,
		Commands: []*cli.Command{
			generateCommand(),
			versionCommand(),
		},
	}
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewApp().Run(context.Background(), os.Args)
}
