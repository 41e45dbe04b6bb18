package contract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wharflab/dgossgen/internal/dockerfile"
	"github.com/wharflab/dgossgen/internal/expand"
	"github.com/wharflab/dgossgen/internal/registry"
	"github.com/wharflab/dgossgen/internal/servicehint"
	"github.com/wharflab/dgossgen/internal/shellwords"
)

// Warning is a non-fatal diagnostic raised while extracting the contract,
// merged into the pipeline's single ordered Warnings sink.
type Warning struct {
	Kind    string
	Message string
	Span    dockerfile.Range
}

// Extractor is a per-instruction reducer over one stage's instructions. It
// owns current_workdir, current_user, the expansion scope, and the RCM
// being built, exactly the single-pass accumulation spec's concurrency
// model requires (no suspension, no shared mutable state beyond this
// value).
type Extractor struct {
	rcm    *RuntimeContractModel
	scope  *expand.Scope
	secret *secretMatcher
	hints  *servicehint.Table

	buildArgs    map[string]string
	buildContext string

	currentWorkdir      string
	currentUser         string
	shellVariant        shellwords.Variant
	healthcheckDeclared bool

	warnings []Warning
}

// NewExtractor builds an Extractor for one stage. globalScope is the
// parent scope holding ARGs declared before the first FROM; buildArgs are
// externally supplied overrides; buildContext, when non-empty, is consulted
// for ADD/COPY glob materialization; extraHints extend the service-hint
// table with policy's service_patterns.
func NewExtractor(globalScope *expand.Scope, buildArgs map[string]string, buildContext string, secretPatterns []string, extraHints map[string]servicehint.Hint) *Extractor {
	return &Extractor{
		rcm:          NewRCM(),
		scope:        expand.NewStageScope(globalScope),
		secret:       newSecretMatcher(secretPatterns),
		hints:        servicehint.NewTable(extraHints),
		buildArgs:    buildArgs,
		buildContext: buildContext,
		shellVariant: shellwords.VariantBash,
	}
}

// Extract walks stage's instructions in source order and returns the
// completed RCM plus any warnings. ctx and resolver are used only for the
// optional registry-assisted base-image corroboration of inherited
// WORKDIR/USER/HEALTHCHECK defaults; resolver may be nil.
func (x *Extractor) Extract(ctx context.Context, stage dockerfile.Stage, resolver registry.ImageResolver, platform string) (*RuntimeContractModel, []Warning) {
	x.rcm.BaseImage = stage.Base.Image
	var base BaseDefaults
	if stage.Base.Image != "" {
		for _, hint := range x.hints.MatchImage(stage.Base.Image) {
			x.applyHint(hint, dockerfile.Range{})
		}
		base = CorroborateBaseDefaults(ctx, resolver, stage.Base.Image, platform)
		if x.currentWorkdir == "" {
			x.currentWorkdir = base.Workdir
		}
		if x.currentUser == "" {
			x.currentUser = base.User
		}
	}

	for _, instr := range stage.Instructions {
		x.step(instr)
	}

	// Docker inherits a base image's HEALTHCHECK when the stage never
	// redeclares one (HEALTHCHECK NONE included, which explicitly clears
	// it — that still counts as declared).
	if !x.healthcheckDeclared && x.rcm.Healthcheck == nil && base.HasHealthcheck && base.HealthcheckCmd != "" {
		x.rcm.Healthcheck = &CommandAssertion{
			Label:        "healthcheck",
			Exec:         base.HealthcheckCmd,
			ExpectedExit: 0,
			TimeoutMS:    5000,
		}
	}

	x.rcm.FinalWorkdir = x.currentWorkdir
	x.rcm.FinalUser = x.currentUser
	return x.rcm, x.warnings
}

func (x *Extractor) warn(kind, msg string, span dockerfile.Range) {
	x.warnings = append(x.warnings, Warning{Kind: kind, Message: msg, Span: span})
}

func (x *Extractor) expandWord(raw string, span dockerfile.Range) string {
	ex := expand.NewExpander(x.scope, x.buildArgs)
	out, warnings := ex.Word(raw, span)
	for _, w := range warnings {
		x.warn("UnresolvedVar", fmt.Sprintf("unresolved variable %q", w.Name), span)
	}
	return out
}

func (x *Extractor) expandWords(raw []string, span dockerfile.Range) []string {
	ex := expand.NewExpander(x.scope, x.buildArgs)
	out, warnings := ex.Words(raw, span)
	for _, w := range warnings {
		x.warn("UnresolvedVar", fmt.Sprintf("unresolved variable %q", w.Name), span)
	}
	return out
}

//nolint:gocyclo // one case per Dockerfile instruction kind, flat by design
func (x *Extractor) step(instr dockerfile.Instruction) {
	switch instr.Kind {
	case dockerfile.KindArg:
		x.scope.Declare(instr.Arg.Name, instr.Arg.Default, instr.Span)

	case dockerfile.KindEnv:
		for _, e := range instr.Env {
			value := x.expandWord(e.Value, instr.Span)
			x.scope.Set(e.Key, value, instr.Span)
			x.rcm.Env[e.Key] = x.secret.redactEnv(e.Key, value)
			if x.secret.matches(e.Key) {
				x.warn("SecretLeak", fmt.Sprintf("env key %q redacted", e.Key), instr.Span)
			}
		}

	case dockerfile.KindWorkdir:
		x.currentWorkdir = resolveAgainstWorkdir(x.expandWord(instr.Workdir, instr.Span), orDefault(x.currentWorkdir, "/"))

	case dockerfile.KindUser:
		x.extractUser(instr)

	case dockerfile.KindExpose:
		for _, e := range instr.Expose {
			x.rcm.ExposedPorts = append(x.rcm.ExposedPorts, PortAssertion{Proto: e.Proto, Port: e.Port, Listening: true})
			key := AssertionKey{Kind: KindPort, Identity: NormalizePort(e.Proto, e.Port)}
			x.rcm.Upsert(Assertion{
				Kind: KindPort, Key: key, Confidence: Medium,
				Provenance: Provenance{Reasons: []string{"EXPOSE instruction"}, Span: instr.Span},
				Port:       &PortAssertion{Proto: orDefault(e.Proto, "tcp"), Port: e.Port, Listening: true},
			})
		}

	case dockerfile.KindVolume:
		for _, v := range instr.Volume {
			path := NormalizePath(x.expandWord(v, instr.Span))
			x.rcm.Volumes = append(x.rcm.Volumes, path)
			key := AssertionKey{Kind: KindFile, Identity: path}
			x.rcm.Upsert(Assertion{
				Kind: KindFile, Key: key, Confidence: Low,
				Provenance: Provenance{Reasons: []string{"VOLUME instruction"}, Span: instr.Span},
				File:       &FileAssertion{Path: path, Exists: true, FileType: "dir"},
			})
		}

	case dockerfile.KindCopy, dockerfile.KindAdd:
		x.extractCopy(instr)

	case dockerfile.KindRun:
		x.extractRun(instr)

	case dockerfile.KindEntrypoint:
		x.extractExec("entrypoint", instr.Entrypoint, instr.Span)

	case dockerfile.KindCmd:
		x.extractExec("cmd", instr.Cmd, instr.Span)

	case dockerfile.KindHealthcheck:
		x.extractHealthcheck(instr)

	case dockerfile.KindShell:
		x.shellVariant = shellwords.VariantFromShellCmd(instr.Shell)

	case dockerfile.KindUnknown:
		x.warn("UnknownInstruction", fmt.Sprintf("unknown instruction %q ignored", instr.Name), instr.Span)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (x *Extractor) extractUser(instr dockerfile.Instruction) {
	spec := x.expandWord(instr.User, instr.Span)
	x.currentUser = spec
	uid, name := spec, ""
	if idx := strings.IndexByte(spec, ':'); idx >= 0 {
		uid = spec[:idx]
	}

	numeric := isNumeric(uid)
	if !numeric {
		name, uid = uid, ""
	}

	confidence := Medium
	if numeric {
		confidence = High
	}

	key := AssertionKey{Kind: KindUser, Identity: spec}
	x.rcm.Upsert(Assertion{
		Kind: KindUser, Key: key, Confidence: confidence,
		Provenance: Provenance{Reasons: []string{"USER instruction"}, Span: instr.Span},
		User:       &UserAssertion{UID: uid, Name: name},
	})

	if numeric {
		exec := fmt.Sprintf("id -u | grep -q %s", uid)
		cmdKey := AssertionKey{Kind: KindCommand, Identity: CommandLabel(exec, nil)}
		x.rcm.Upsert(Assertion{
			Kind: KindCommand, Key: cmdKey, Confidence: High,
			Provenance: Provenance{Reasons: []string{"USER instruction"}, Span: instr.Span},
			Command:    &CommandAssertion{Label: cmdKey.Identity, Exec: exec, ExpectedExit: 0, TimeoutMS: 10000},
		})
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

func (x *Extractor) extractCopy(instr dockerfile.Instruction) {
	c := instr.Copy
	if c == nil {
		return
	}

	// Cross-stage COPY --from=X is taken at face value: stage X's own
	// contents are never inspected (the stage graph in internal/stage only
	// records the dependency edge), so the destination is recorded the same
	// way regardless of source, since a materialised path in this stage is a
	// claim about this stage's filesystem either way.
	sources := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		sources[i] = x.expandWord(s, instr.Span)
	}
	dest := x.expandWord(c.Dest, instr.Span)

	paths := materializeDestPaths(sources, dest, orDefault(x.currentWorkdir, "/"), x.buildContext)
	for _, p := range paths {
		norm := NormalizePath(p)
		x.rcm.CopyPaths = append(x.rcm.CopyPaths, norm)
		key := AssertionKey{Kind: KindFile, Identity: norm}
		fa := &FileAssertion{Path: norm, Exists: true}
		if c.Chmod != "" {
			fa.Mode = x.expandWord(c.Chmod, instr.Span)
		}
		if c.Chown != "" {
			owner := x.expandWord(c.Chown, instr.Span)
			if idx := strings.IndexByte(owner, ':'); idx >= 0 {
				fa.Owner, fa.Group = owner[:idx], owner[idx+1:]
			} else {
				fa.Owner = owner
			}
		}
		reason := "COPY instruction"
		if c.IsAdd {
			reason = "ADD instruction"
		}
		x.rcm.Upsert(Assertion{
			Kind: KindFile, Key: key, Confidence: Medium,
			Provenance: Provenance{Reasons: []string{reason}, Span: instr.Span},
			File:       fa,
		})
	}
}

func (x *Extractor) extractRun(instr dockerfile.Instruction) {
	if instr.Run == nil {
		return
	}
	words := x.expandWords(instr.Run.Words, instr.Span)
	packages := servicehint.ExtractPackages(words, x.shellVariant)
	for _, hint := range x.hints.MatchPackages(packages) {
		x.applyHint(hint, instr.Span)
	}
}

func (x *Extractor) applyHint(hint servicehint.Hint, span dockerfile.Range) {
	reason := servicehint.ProvenanceReason(hint.Name)
	x.rcm.ServiceHints = append(x.rcm.ServiceHints, hint.Name)

	if hint.Process != "" {
		key := AssertionKey{Kind: KindProcess, Identity: hint.Process}
		x.rcm.Upsert(Assertion{
			Kind: KindProcess, Key: key, Confidence: Medium,
			Provenance: Provenance{Reasons: []string{reason}, Span: span},
			Process:    &ProcessAssertion{Name: hint.Process, Running: true},
		})
	}
	if hint.ConfigPath != "" {
		norm := NormalizePath(hint.ConfigPath)
		key := AssertionKey{Kind: KindFile, Identity: norm}
		x.rcm.Upsert(Assertion{
			Kind: KindFile, Key: key, Confidence: Medium,
			Provenance: Provenance{Reasons: []string{reason}, Span: span},
			File:       &FileAssertion{Path: norm, Exists: true},
		})
	}
	if hint.VersionProbe != "" {
		key := AssertionKey{Kind: KindCommand, Identity: CommandLabel(hint.VersionProbe, nil)}
		x.rcm.Upsert(Assertion{
			Kind: KindCommand, Key: key, Confidence: Medium,
			Provenance: Provenance{Reasons: []string{reason}, Span: span},
			Command:    &CommandAssertion{Label: key.Identity, Exec: hint.VersionProbe, ExpectedExit: 0, TimeoutMS: 10000},
		})
	}
}

func (x *Extractor) extractExec(which string, exec *dockerfile.ExecInstr, span dockerfile.Range) {
	if exec == nil {
		return
	}
	confidence := Medium
	var name string

	words := x.expandWords(exec.Words, span)
	if len(words) == 0 {
		return
	}

	switch exec.Form {
	case dockerfile.FormExec:
		name = shellwords.Basename(words[0])
	default:
		first, clean := shellwords.FirstWord(words[0], x.shellVariant)
		name = shellwords.Basename(first)
		if !clean {
			confidence = Low
		}
	}

	if name == "" {
		return
	}

	reason := "ENTRYPOINT instruction"
	if which == "cmd" {
		reason = "CMD instruction"
	}

	key := AssertionKey{Kind: KindProcess, Identity: NormalizeProcess(name)}
	x.rcm.Upsert(Assertion{
		Kind: KindProcess, Key: key, Confidence: confidence,
		Provenance: Provenance{Reasons: []string{reason}, Span: span},
		Process:    &ProcessAssertion{Name: NormalizeProcess(name), Running: true},
	})

	form := exec.Form == dockerfile.FormExec
	ef := &ExecForm{Shell: !form, Words: words}
	if which == "cmd" {
		x.rcm.Cmd = ef
	} else {
		x.rcm.Entrypoint = ef
	}
}

func (x *Extractor) extractHealthcheck(instr dockerfile.Instruction) {
	hc := instr.Healthcheck
	if hc == nil {
		return
	}
	x.healthcheckDeclared = true
	if hc.Disabled {
		x.rcm.Healthcheck = nil
		return
	}
	if hc.Test == nil || len(hc.Test.Words) == 0 {
		return
	}
	words := x.expandWords(hc.Test.Words, instr.Span)
	exec := strings.Join(words, " ")
	x.rcm.Healthcheck = &CommandAssertion{
		Label:        "healthcheck",
		Exec:         exec,
		ExpectedExit: 0,
		TimeoutMS:    5000,
	}
}

// CommandLabel derives an emitted command assertion's label from its exec
// string: lowercase, each non-alphanumeric character maps to its own '-'
// (runs of punctuation/whitespace are NOT collapsed — "id -u | grep -q 65534"
// becomes "id--u---grep--q-65534"), truncated to 64 chars. seen tracks
// already-used labels in the current emission so collisions get -2, -3,
// ... suffixes; pass nil when dedup isn't needed (a label derived with nil
// is emitted as-is; the emitter derives with its own seen set only for
// commands whose Label is empty).
func CommandLabel(exec string, seen map[string]int) string {
	lower := strings.ToLower(exec)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('-')
	}
	label := b.String()
	if len(label) > 64 {
		label = label[:64]
	}
	if seen == nil {
		return label
	}
	seen[label]++
	if seen[label] == 1 {
		return label
	}
	return fmt.Sprintf("%s-%d", label, seen[label])
}
