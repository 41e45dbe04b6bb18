package expand

import (
	"sort"

	dfshell "github.com/moby/buildkit/frontend/dockerfile/shell"

	"github.com/wharflab/dgossgen/internal/dockerfile"
)

// Warning is an unresolved-reference diagnostic, surfaced per spec.md
// §4.3: unresolved names expand to empty string rather than failing.
type Warning struct {
	Name string
	Span dockerfile.Range
}

// Expander resolves $NAME / ${NAME} / ${NAME:-default} / ${NAME:+alt} /
// ${NAME-default} / ${NAME+alt} against a Scope, using BuildKit's own shell
// word lexer so the recognised forms match a real build rather than a
// reimplementation of POSIX parameter expansion.
type Expander struct {
	scope     *Scope
	buildArgs map[string]string
	lex       *dfshell.Lex
}

// NewExpander builds an Expander over scope. buildArgs are externally
// supplied build-time overrides (may be nil); a name present in buildArgs
// that was never declared with ARG has no effect.
func NewExpander(scope *Scope, buildArgs map[string]string) *Expander {
	return &Expander{scope: scope, buildArgs: buildArgs, lex: dfshell.NewLex('\\')}
}

// scopeEnv adapts Scope to dfshell.EnvGetter.
type scopeEnv struct {
	scope     *Scope
	buildArgs map[string]string
}

func (e *scopeEnv) Get(key string) (string, bool) {
	return e.scope.Resolve(key, e.buildArgs)
}

func (e *scopeEnv) Keys() []string {
	set := make(map[string]struct{})
	for s := e.scope; s != nil; s = s.parent {
		for _, name := range s.argOrder {
			set[name] = struct{}{}
		}
		for _, name := range s.envOrder {
			set[name] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Word expands a single shell-form word (ENV value, RUN shell-form text,
// one element of an exec-form array, a WORKDIR/USER/EXPOSE argument). It
// returns the expanded text and any unresolved-reference warnings, one per
// distinct unmatched name.
func (x *Expander) Word(raw string, span dockerfile.Range) (string, []Warning) {
	env := &scopeEnv{scope: x.scope, buildArgs: x.buildArgs}
	result, unmatched, err := x.lex.ProcessWord(raw, env)
	if err != nil {
		// Malformed expansion syntax: leave the text untouched rather than
		// failing the whole pipeline, matching the "expand to empty on
		// failure" spirit of spec.md §4.3 for a single bad reference.
		return raw, nil
	}

	if len(unmatched) == 0 {
		return result, nil
	}

	names := make([]string, 0, len(unmatched))
	for name := range unmatched {
		names = append(names, name)
	}
	sort.Strings(names)

	warnings := make([]Warning, 0, len(names))
	for _, name := range names {
		warnings = append(warnings, Warning{Name: name, Span: span})
	}
	return result, warnings
}

// Words expands each element of an exec-form argv independently, per
// spec.md §4.3 ("inside exec-form JSON strings, expansion applies to each
// element independently").
func (x *Expander) Words(raw []string, span dockerfile.Range) ([]string, []Warning) {
	out := make([]string, len(raw))
	var warnings []Warning
	for i, w := range raw {
		expanded, ws := x.Word(w, span)
		out[i] = expanded
		warnings = append(warnings, ws...)
	}
	return out, warnings
}
