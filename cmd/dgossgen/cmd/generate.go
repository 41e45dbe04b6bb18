package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/wharflab/dgossgen/internal/contract"
	"github.com/wharflab/dgossgen/internal/pipeline"
)

// Exit codes per the core's exit-code contract: success, success with at
// least one warning, and any fatal error (parse, cycle, policy violation).
const (
	ExitSuccess  = 0
	ExitFatal    = 1
	ExitWarnings = 2
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate goss assertions from a Dockerfile",
		ArgsUsage: "[DOCKERFILE]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "context",
				Aliases: []string{"C"},
				Usage:   "Build context directory, consulted for ADD/COPY glob materialisation",
				Sources: cli.EnvVars("DGOSSGEN_CONTEXT"),
			},
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "Target stage name or index (default: last stage)",
				Sources: cli.EnvVars("DGOSSGEN_TARGET"),
			},
			&cli.StringFlag{
				Name:    "platform",
				Usage:   "Platform for registry-assisted base image corroboration (e.g. linux/amd64)",
				Sources: cli.EnvVars("DGOSSGEN_PLATFORM"),
			},
			&cli.StringSliceFlag{
				Name:  "build-arg",
				Usage: "Build argument override KEY=VALUE (repeatable)",
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "Named profile: minimal, standard, strict",
				Value:   "standard",
				Sources: cli.EnvVars("DGOSSGEN_PROFILE"),
			},
			&cli.BoolFlag{
				Name:  "emit-file-modes",
				Usage: "Emit file mode/owner/group fields (overrides the profile default)",
			},
			&cli.StringFlag{
				Name:  "assert-ports",
				Usage: "Port assertion policy: required, optional, off",
				Value: "required",
			},
			&cli.StringFlag{
				Name:  "assert-process",
				Usage: "Process assertion policy: required, optional, off",
				Value: "required",
			},
			&cli.StringSliceFlag{
				Name:  "ignore-path",
				Usage: "File path prefix to drop from the contract (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "force-wait",
				Usage: "Produce a wait file whenever there is a healthcheck, port or process to wait on",
			},
			&cli.BoolFlag{
				Name:  "disable-wait",
				Usage: "Never produce a wait file",
			},
			&cli.IntFlag{
				Name:  "wait-timeout-ms",
				Usage: "Wait-file retry-timeout in milliseconds (default 10000)",
			},
			&cli.IntFlag{
				Name:  "wait-retry-ms",
				Usage: "Wait-file sleep interval in milliseconds (default 500)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path for the primary YAML document (default: stdout)",
				Value:   "-",
			},
			&cli.StringFlag{
				Name:  "wait-output",
				Usage: "Path for the wait-file document, when one is produced (default: <output> with a .yaml suffix replaced by .wait.yaml, or .wait.yaml appended; stdout when output is stdout)",
			},
		},
		Action: runGenerate,
	}
}

func runGenerate(ctx context.Context, cmd *cli.Command) error {
	path := "Dockerfile"
	if args := cmd.Args().Slice(); len(args) > 0 {
		path = args[0]
	}

	profile, err := namedProfile(cmd.String("profile"))
	if err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}
	if cmd.IsSet("emit-file-modes") {
		overrides := profile
		overrides.EmitFileModes = cmd.Bool("emit-file-modes")
		profile, err = mergeProfileOverrides(profile, overrides)
		if err != nil {
			return cli.Exit(err.Error(), ExitFatal)
		}
	}

	policy := contract.DefaultPolicy()
	if policy.AssertPorts, err = parseCategoryMode(cmd.String("assert-ports")); err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}
	if policy.AssertProcess, err = parseCategoryMode(cmd.String("assert-process")); err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}
	policy.IgnorePaths = cmd.StringSlice("ignore-path")
	policy.ForceWait = cmd.Bool("force-wait")
	policy.DisableWait = cmd.Bool("disable-wait")
	policy.Wait.TimeoutMS = cmd.Int("wait-timeout-ms")
	policy.Wait.RetryIntervalMS = cmd.Int("wait-retry-ms")

	buildArgs, err := parseBuildArgs(cmd.StringSlice("build-arg"))
	if err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}

	in := pipeline.Input{
		Path:         path,
		BuildContext: cmd.String("context"),
		Target:       cmd.String("target"),
		BuildArgs:    buildArgs,
		Platform:     cmd.String("platform"),
		Policy:       policy,
		Profile:      profile,
	}

	out, err := pipeline.RunFile(ctx, path, in)
	if err != nil {
		logrus.WithError(err).Error("dgossgen: fatal error")
		return cli.Exit(err.Error(), ExitFatal)
	}

	if err := writeDocument(cmd.String("output"), out.Documents.Main); err != nil {
		return cli.Exit(err.Error(), ExitFatal)
	}
	if out.Documents.Wait != nil {
		waitPath := cmd.String("wait-output")
		if waitPath == "" {
			waitPath = defaultWaitPath(cmd.String("output"))
		}
		if waitPath == cmd.String("output") {
			if err := writeDocument(waitPath, []byte("---\n")); err != nil {
				return cli.Exit(err.Error(), ExitFatal)
			}
		}
		if err := writeDocument(waitPath, out.Documents.Wait); err != nil {
			return cli.Exit(err.Error(), ExitFatal)
		}
	}

	for _, w := range out.Warnings {
		logrus.WithFields(logrus.Fields{
			"kind": w.Kind,
			"line": w.Line,
		}).Warn(w.Message)
	}

	if len(out.Warnings) > 0 {
		return cli.Exit("", ExitWarnings)
	}
	return nil
}

func parseBuildArgs(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --build-arg %q: want KEY=VALUE", kv)
		}
		out[name] = value
	}
	return out, nil
}

func writeDocument(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultWaitPath(outputPath string) string {
	if outputPath == "" || outputPath == "-" {
		return "-"
	}
	if ext := strings.TrimSuffix(outputPath, ".yaml"); ext != outputPath {
		return ext + ".wait.yaml"
	}
	return outputPath + ".wait.yaml"
}
