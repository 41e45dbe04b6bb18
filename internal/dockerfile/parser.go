// Package dockerfile parses Dockerfile text into the tagged Instruction
// model used by the rest of the pipeline. Tokenizing, continuation folding,
// heredocs, and parser directives are handled by BuildKit's own Dockerfile
// frontend packages; this package's own work is converting that AST into
// our Stage/Instruction sum types.
package dockerfile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/command"
	"github.com/moby/buildkit/frontend/dockerfile/instructions"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// LexError is returned when the raw byte stream cannot be tokenized at all
// (malformed heredoc, unterminated quote, bad escape directive).
type LexError struct {
	Path string
	Pos  Position
	Err  error
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s:%d:%d: lex error: %v", e.Path, e.Pos.Line, e.Pos.Column, e.Err)
}
func (e *LexError) Unwrap() error { return e.Err }

// ParseError is returned when the token stream is not a valid instruction
// sequence (instructions.Parse failure).
type ParseError struct {
	Path string
	Pos  Position
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: parse error: %v", e.Path, e.Pos.Line, e.Pos.Column, e.Err)
}
func (e *ParseError) Unwrap() error { return e.Err }

// DuplicateStageAliasError is fatal per spec.md §4.1: stage aliases must be
// unique.
type DuplicateStageAliasError struct {
	Alias  string
	First  Range
	Second Range
}

func (e *DuplicateStageAliasError) Error() string {
	return fmt.Sprintf("duplicate stage alias %q (first declared at %d:%d)", e.Alias, e.First.Start.Line, e.First.Start.Column)
}

// Warning is a non-fatal diagnostic accumulated during parsing, carried
// through to the pipeline's ordered Warnings sink.
type Warning struct {
	Kind    string
	Message string
	Span    Range
}

// Result is the output of Parse: the Stage sequence plus global ARGs
// declared before the first FROM, and any non-fatal warnings.
type Result struct {
	Stages     []Stage
	GlobalArgs []ArgInstr
	Warnings   []Warning
	Source     []byte
}

func openDockerfile(path string) (io.Reader, func() error, error) {
	if path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// ParseFile reads and parses a Dockerfile at path ("-" for stdin).
func ParseFile(_ context.Context, path string) (*Result, error) {
	r, closer, err := openDockerfile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer() }()
	return Parse(r, path)
}

// Parse parses a Dockerfile from r. path is used only for error/warning
// coordinates and may be empty.
func Parse(r io.Reader, path string) (*Result, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	ast, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, &LexError{Path: path, Err: err}
	}

	result := &Result{Source: content}
	if w := checkSyntaxDirective(content); w != nil {
		result.Warnings = append(result.Warnings, *w)
	}

	// Unknown instruction keywords would make instructions.Parse fail
	// outright; spec.md §3 requires them to be retained as Unknown{} with a
	// warning instead, so they are stripped from the AST before BuildKit's
	// typed parse and reattached to their enclosing stage afterward.
	unknown := extractUnknownNodes(ast.AST)

	stages, metaArgs, err := instructions.Parse(ast.AST, nil)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	seenAlias := make(map[string]Range)
	for i := range metaArgs {
		for _, a := range metaArgs[i].Args {
			result.GlobalArgs = append(result.GlobalArgs, ArgInstr{Name: a.Key, Default: a.Value})
		}
	}

	for i := range stages {
		stage, warnings, convErr := convertStage(&stages[i], i)
		if convErr != nil {
			return nil, convErr
		}
		result.Warnings = append(result.Warnings, warnings...)

		if stage.Name != "" {
			norm := strings.ToLower(stage.Name)
			if first, dup := seenAlias[norm]; dup {
				return nil, &DuplicateStageAliasError{Alias: stage.Name, First: first, Second: stage.Span}
			}
			seenAlias[norm] = stage.Span
		}

		result.Stages = append(result.Stages, stage)
	}

	for _, u := range unknown {
		result.Warnings = append(result.Warnings, Warning{
			Kind:    "UnknownInstruction",
			Message: suggestInstruction(u.name),
			Span:    u.span,
		})
		if u.stageIdx >= 0 && u.stageIdx < len(result.Stages) {
			result.Stages[u.stageIdx].Instructions = append(result.Stages[u.stageIdx].Instructions, Instruction{
				Kind: KindUnknown, Span: u.span, Name: u.name, Raw: u.raw,
			})
		}
	}

	return result, nil
}

type unknownNode struct {
	name     string
	raw      string
	span     Range
	stageIdx int
}

// extractUnknownNodes removes any top-level node whose keyword BuildKit
// does not recognize from ast so instructions.Parse can proceed, returning
// them (with the stage index they belong to, by FROM count) for the caller
// to reattach as Unknown{} instructions.
func extractUnknownNodes(ast *parser.Node) []unknownNode {
	if ast == nil {
		return nil
	}

	var unknown []unknownNode
	kept := ast.Children[:0:0]
	stageIdx := -1

	for _, node := range ast.Children {
		keyword := strings.ToLower(node.Value)
		if keyword == "from" {
			stageIdx++
		}
		if _, ok := command.Commands[keyword]; ok {
			kept = append(kept, node)
			continue
		}
		unknown = append(unknown, unknownNode{
			name: strings.ToUpper(node.Value),
			raw:  node.Original,
			span: Range{
				Start: Position{Line: node.StartLine - 1},
				End:   Position{Line: node.EndLine - 1},
			},
			stageIdx: stageIdx,
		})
	}
	ast.Children = kept
	return unknown
}

func convertStage(s *instructions.Stage, index int) (Stage, []Warning, error) {
	stage := Stage{
		Index: index,
		Name:  s.Name,
		Span:  rangeFromParser(s.Location),
		Base: FromInstr{
			Image:    s.BaseName,
			Alias:    s.Name,
			Platform: s.Platform,
		},
	}

	var warnings []Warning
	for _, cmd := range s.Commands {
		if arg, ok := cmd.(*instructions.ArgCommand); ok {
			span := rangeFromParser(arg.Location())
			for _, a := range arg.Args {
				stage.Instructions = append(stage.Instructions, Instruction{
					Kind: KindArg, Span: span, Arg: &ArgInstr{Name: a.Key, Default: a.Value},
				})
			}
			continue
		}

		instr, w, err := convertCommand(cmd)
		if err != nil {
			return Stage{}, nil, err
		}
		warnings = append(warnings, w...)
		stage.Instructions = append(stage.Instructions, instr)
	}
	return stage, warnings, nil
}

//nolint:gocyclo // one case per Dockerfile instruction keyword, flat by design
func convertCommand(cmd instructions.Command) (Instruction, []Warning, error) {
	span := rangeFromParser(cmd.Location())

	switch c := cmd.(type) {
	case *instructions.EnvCommand:
		pairs := make([]EnvPair, 0, len(c.Env))
		for _, e := range c.Env {
			pairs = append(pairs, EnvPair{Key: e.Key, Value: e.Value})
		}
		return Instruction{Kind: KindEnv, Span: span, Env: pairs}, nil, nil

	case *instructions.LabelCommand:
		pairs := make([]EnvPair, 0, len(c.Labels))
		for _, l := range c.Labels {
			pairs = append(pairs, EnvPair{Key: l.Key, Value: l.Value})
		}
		return Instruction{Kind: KindLabel, Span: span, Label: pairs}, nil, nil

	case *instructions.WorkdirCommand:
		return Instruction{Kind: KindWorkdir, Span: span, Workdir: c.Path}, nil, nil

	case *instructions.UserCommand:
		return Instruction{Kind: KindUser, Span: span, User: c.User}, nil, nil

	case *instructions.ExposeCommand:
		var ports []ExposeInstr
		for _, raw := range c.Ports {
			p, proto := splitPortProto(raw)
			n, err := strconv.Atoi(p)
			if err != nil {
				continue
			}
			ports = append(ports, ExposeInstr{Port: n, Proto: proto})
		}
		return Instruction{Kind: KindExpose, Span: span, Expose: ports}, nil, nil

	case *instructions.VolumeCommand:
		return Instruction{Kind: KindVolume, Span: span, Volume: append([]string(nil), c.Volumes...)}, nil, nil

	case *instructions.CopyCommand:
		return Instruction{Kind: KindCopy, Span: span, Copy: convertCopy(c, false)}, nil, nil

	case *instructions.AddCommand:
		return Instruction{Kind: KindAdd, Span: span, Copy: convertCopy(&c.CopyCommand, true)}, nil, nil

	case *instructions.RunCommand:
		exec, warn := convertExec(c.ShellDependantCmdLine, span)
		if len(c.Files) > 0 {
			var body strings.Builder
			for _, f := range c.Files {
				body.WriteString(f.Data)
			}
			exec.Words = append(exec.Words, body.String())
		}
		return Instruction{Kind: KindRun, Span: span, Run: exec}, warn, nil

	case *instructions.CmdCommand:
		exec, warn := convertExec(c.ShellDependantCmdLine, span)
		return Instruction{Kind: KindCmd, Span: span, Cmd: exec}, warn, nil

	case *instructions.EntrypointCommand:
		exec, warn := convertExec(c.ShellDependantCmdLine, span)
		return Instruction{Kind: KindEntrypoint, Span: span, Entrypoint: exec}, warn, nil

	case *instructions.HealthCheckCommand:
		hc := &HealthcheckInstr{}
		if c.Health != nil {
			if len(c.Health.Test) > 0 && c.Health.Test[0] == "NONE" {
				hc.Disabled = true
			} else if len(c.Health.Test) > 0 {
				words := c.Health.Test[1:]
				form := FormExec
				if c.Health.Test[0] == "CMD-SHELL" {
					form = FormShell
				}
				hc.Test = &ExecInstr{Form: form, Words: words}
			}
			hc.Interval = c.Health.Interval.String()
			hc.Timeout = c.Health.Timeout.String()
			hc.StartPeriod = c.Health.StartPeriod.String()
			hc.Retries = c.Health.Retries
		}
		return Instruction{Kind: KindHealthcheck, Span: span, Healthcheck: hc}, nil, nil

	case *instructions.ShellCommand:
		return Instruction{Kind: KindShell, Span: span, Shell: append([]string(nil), c.Shell...)}, nil, nil

	case *instructions.StopSignalCommand:
		return Instruction{Kind: KindStopsignal, Span: span, Stopsignal: c.Signal}, nil, nil

	case *instructions.OnbuildCommand:
		return Instruction{Kind: KindOnbuild, Span: span, Raw: c.Expression}, nil, nil

	case *instructions.MaintainerCommand:
		return Instruction{Kind: KindMaintainer, Span: span, Maintainer: c.Maintainer}, nil, nil

	default:
		name := cmd.Name()
		return Instruction{Kind: KindUnknown, Span: span, Name: name, Raw: name}, []Warning{{
			Kind:    "UnknownInstruction",
			Message: fmt.Sprintf("unknown instruction %q ignored", name),
			Span:    span,
		}}, nil
	}
}

func convertCopy(c *instructions.CopyCommand, isAdd bool) *CopyInstr {
	return &CopyInstr{
		Sources:   append([]string(nil), c.SourcesAndDest.SourcePaths...),
		Dest:      c.SourcesAndDest.DestPath,
		FromStage: c.From,
		Chmod:     c.Chmod,
		Chown:     c.Chown,
		IsAdd:     isAdd,
	}
}

// convertExec converts a ShellDependantCmdLine (BuildKit's shared shape for
// RUN/CMD/ENTRYPOINT) into an ExecInstr. BuildKit's own parser already
// resolves the JSON-vs-shell decision (including the "invalid JSON falls
// back to shell form" rule of spec.md §4.1) before instructions.Parse
// returns, recording the outcome in PrependShell: true means shell form
// (the image's default shell is prepended at build time), false means the
// line parsed as a valid JSON exec-form array.
func convertExec(cmd instructions.ShellDependantCmdLine, _ Range) (*ExecInstr, []Warning) {
	if cmd.PrependShell {
		if len(cmd.CmdLine) == 0 {
			return &ExecInstr{Form: FormShell}, nil
		}
		return &ExecInstr{Form: FormShell, Words: []string{cmd.CmdLine[0]}}, nil
	}
	return &ExecInstr{Form: FormExec, Words: append([]string(nil), cmd.CmdLine...)}, nil
}

func splitPortProto(raw string) (string, string) {
	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, "tcp"
}
