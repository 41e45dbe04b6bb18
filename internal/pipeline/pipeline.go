// Package pipeline wires the Lexer/Parser, Stage Resolver, Contract
// Extractor, Evidence Merger, Policy & Profile Filter, and Emitter stages
// together into the single pure function spec's concurrency model
// describes: (source, policy, profile, optional evidence) -> (documents,
// report, warnings), apart from the file reads and the one synchronous
// EvidenceSource call at its boundaries.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wharflab/dgossgen/internal/contract"
	"github.com/wharflab/dgossgen/internal/dockerfile"
	"github.com/wharflab/dgossgen/internal/emit"
	"github.com/wharflab/dgossgen/internal/evidence"
	"github.com/wharflab/dgossgen/internal/expand"
	"github.com/wharflab/dgossgen/internal/fileval"
	"github.com/wharflab/dgossgen/internal/filter"
	"github.com/wharflab/dgossgen/internal/registry"
	"github.com/wharflab/dgossgen/internal/servicehint"
	"github.com/wharflab/dgossgen/internal/stage"
)

// maxDockerfileSize bounds the Lexer stage's pre-parse validation; callers
// needing a different ceiling should run fileval.ValidateFile themselves
// before constructing Input with an already-open reader.
const maxDockerfileSize = 4 << 20 // 4 MiB

// RunFile is a convenience wrapper around Run for callers that have a path
// rather than an already-open reader: it runs the Lexer stage's pre-parse
// validation (size bounds, executable bit, UTF-8 smoke check) before
// opening and handing the file to Run, so a clearly-invalid file fails
// fast with a precise diagnostic instead of a confusing lex error.
func RunFile(ctx context.Context, path string, in Input) (*Output, error) {
	if path == "-" {
		in.Source = os.Stdin
		in.Path = path
		return Run(ctx, in)
	}

	if err := fileval.ValidateFile(path, maxDockerfileSize); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	in.Source = f
	in.Path = path
	return Run(ctx, in)
}

// Warning is the pipeline's own ordered-sink shape, uniting warnings
// raised by every stage (parser, extractor, evidence, filter) into one
// caller-facing list.
type Warning struct {
	Kind    string
	Message string
	Line    int
	Column  int
}

// PolicyViolationError is fatal per spec's §7 taxonomy: a category the
// policy marks required produced no surviving assertion after filtering.
type PolicyViolationError struct {
	Category string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("policy requires at least one %s assertion, none survived", e.Category)
}

// EvidenceUnavailableError is fatal only when the caller declared evidence
// required; otherwise collection failure degrades to a warning.
type EvidenceUnavailableError struct {
	Err error
}

func (e *EvidenceUnavailableError) Error() string { return fmt.Sprintf("evidence unavailable: %v", e.Err) }
func (e *EvidenceUnavailableError) Unwrap() error  { return e.Err }

// Input is everything Run needs: the Dockerfile source, the build-context
// directory used only for ADD/COPY glob materialisation, the caller's
// policy and profile, and the optional collaborators (registry resolver,
// evidence source) the core treats as best-effort.
type Input struct {
	Source       io.Reader
	Path         string
	BuildContext string
	Target       string // stage name/index; empty defaults to the last stage
	BuildArgs    map[string]string
	Platform     string

	Policy  contract.Policy
	Profile contract.Profile

	Resolver        registry.ImageResolver // optional, nil disables corroboration
	EvidenceSource  evidence.Source        // optional, nil means no evidence
	BuildPlan       evidence.BuildPlan
	RequireEvidence bool
}

// Output is the pipeline's result: the two YAML buffers, the structured
// report, and the ordered warning sink.
type Output struct {
	Documents emit.Documents
	Report    contract.Report
	Warnings  []Warning
}

// Run executes the full pipeline once. Any error it returns is fatal per
// spec's exit-code contract (caller maps to exit 1); a non-nil Output with
// a non-empty Warnings is exit 2 by convention, exit 0 otherwise — Run
// itself never inspects exit codes, that remains the caller's job.
func Run(ctx context.Context, in Input) (*Output, error) {
	var warnings []Warning

	result, err := dockerfile.Parse(in.Source, in.Path)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		warnings = append(warnings, Warning{Kind: w.Kind, Message: w.Message, Line: w.Span.Start.Line, Column: w.Span.Start.Column})
	}

	if _, err := stage.BuildGraph(result.Stages); err != nil {
		return nil, err
	}

	target, _, err := stage.Resolve(result.Stages, in.Target)
	if err != nil {
		return nil, err
	}

	globalScope := expand.NewGlobalScope()
	for _, a := range result.GlobalArgs {
		globalScope.Declare(a.Name, a.Default, dockerfile.Range{})
	}

	extractor := contract.NewExtractor(globalScope, in.BuildArgs, in.BuildContext, in.Policy.SecretPatterns, hintOverrides(in.Policy))
	rcm, extractWarnings := extractor.Extract(ctx, *target, in.Resolver, in.Platform)
	for _, w := range extractWarnings {
		warnings = append(warnings, Warning{Kind: w.Kind, Message: w.Message, Line: w.Span.Start.Line, Column: w.Span.Start.Column})
	}

	if in.EvidenceSource != nil {
		bundle, evErr := in.EvidenceSource.Collect(ctx, in.BuildPlan)
		switch {
		case evErr != nil && in.RequireEvidence:
			return nil, &EvidenceUnavailableError{Err: evErr}
		case evErr != nil:
			warnings = append(warnings, Warning{Kind: "EvidenceUnavailable", Message: evErr.Error()})
		default:
			evidence.Merge(rcm, bundle)
		}
	}

	filtered := filter.Apply(rcm, in.Profile, in.Policy)

	if violation := checkPolicyViolations(filtered, in.Policy); violation != "" {
		return nil, &PolicyViolationError{Category: violation}
	}

	docs := emit.Emit(filtered, rcm.Healthcheck, emit.WaitPolicy{
		ForceWait:   in.Policy.ForceWait,
		DisableWait: in.Policy.DisableWait,
		TimeoutMS:   in.Policy.Wait.TimeoutMS,
		RetryMS:     in.Policy.Wait.RetryIntervalMS,
	})

	report := contract.BuildReport(rcm, extractWarnings)

	return &Output{Documents: docs, Report: report, Warnings: warnings}, nil
}

func hintOverrides(policy contract.Policy) map[string]servicehint.Hint {
	if len(policy.ServicePatterns) == 0 {
		return nil
	}
	out := make(map[string]servicehint.Hint, len(policy.ServicePatterns))
	for k, h := range policy.ServicePatterns {
		out[k] = servicehint.Hint{Name: h.Name, Process: h.Process, ConfigPath: h.ConfigPath, VersionProbe: h.VersionProbe}
	}
	return out
}

func checkPolicyViolations(assertions []contract.Assertion, policy contract.Policy) string {
	if policy.AssertPorts == contract.ModeRequired && !hasKind(assertions, contract.KindPort) {
		return "port"
	}
	if policy.AssertProcess == contract.ModeRequired && !hasKind(assertions, contract.KindProcess) {
		return "process"
	}
	return ""
}

func hasKind(assertions []contract.Assertion, kind contract.Kind) bool {
	for _, a := range assertions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}
