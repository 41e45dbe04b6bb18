// Command dgossgen is a thin demonstration front door over
// internal/pipeline: it reads a Dockerfile, runs the full pipeline, and
// writes the resulting goss-style YAML documents to stdout or a file.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wharflab/dgossgen/cmd/dgossgen/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		if msg := coder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
