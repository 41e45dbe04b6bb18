// Package expand resolves $NAME / ${NAME} variable references against the
// two-tier ARG/ENV scope built up while walking a stage, using BuildKit's own
// shell word lexer so the substitution forms match what a real build would
// do.
package expand

import "github.com/wharflab/dgossgen/internal/dockerfile"

// ArgEntry is a single declared ARG, with its default (nil if none) and the
// source range it was declared at.
type ArgEntry struct {
	Name  string
	Value *string
	Span  dockerfile.Range
}

// EnvEntry is a single ENV assignment.
type EnvEntry struct {
	Name  string
	Value string
	Span  dockerfile.Range
}

// Scope is a two-tier ARG/ENV lookup table for one stage, chained to a
// parent holding the global (pre-FROM) ARGs. Order of declaration is
// preserved for deterministic emission of the final env block.
//
// Precedence on Resolve: ENV shadows ARG. A global ARG is visible in a stage
// only once the stage redeclares it with its own ARG line — this mirrors
// Dockerfile semantics, not general lexical scoping.
type Scope struct {
	parent *Scope

	args     map[string]*ArgEntry
	envs     map[string]*EnvEntry
	argOrder []string
	envOrder []string
}

// NewGlobalScope creates the scope holding ARGs declared before the first
// FROM.
func NewGlobalScope() *Scope {
	return &Scope{args: make(map[string]*ArgEntry), envs: make(map[string]*EnvEntry)}
}

// NewStageScope creates a stage-local scope chained to parent.
func NewStageScope(parent *Scope) *Scope {
	return &Scope{parent: parent, args: make(map[string]*ArgEntry), envs: make(map[string]*EnvEntry)}
}

// Declare records an ARG and, from this point on, makes name visible.
func (s *Scope) Declare(name string, value *string, span dockerfile.Range) {
	if _, exists := s.args[name]; !exists {
		s.argOrder = append(s.argOrder, name)
	}
	s.args[name] = &ArgEntry{Name: name, Value: value, Span: span}
}

// Set records an ENV assignment.
func (s *Scope) Set(name, value string, span dockerfile.Range) {
	if _, exists := s.envs[name]; !exists {
		s.envOrder = append(s.envOrder, name)
	}
	s.envs[name] = &EnvEntry{Name: name, Value: value, Span: span}
}

// Resolve looks up name under env-shadows-args precedence. buildArgs, when
// non-nil, overrides a declared ARG's default (an externally supplied build
// arg); a name present in buildArgs but never declared with ARG has no
// effect and is the caller's concern to warn about.
func (s *Scope) Resolve(name string, buildArgs map[string]string) (string, bool) {
	if env, ok := s.envs[name]; ok {
		return env.Value, true
	}

	if arg, ok := s.args[name]; ok {
		if buildArgs != nil {
			if v, ok := buildArgs[name]; ok {
				return v, true
			}
		}
		if arg.Value != nil {
			return *arg.Value, true
		}
		if s.parent != nil {
			if parent := s.parent.GetArg(name); parent != nil && parent.Value != nil {
				return *parent.Value, true
			}
		}
		return "", false
	}

	return "", false
}

// HasArg reports whether name is declared as an ARG anywhere in the scope
// chain, regardless of whether it currently resolves.
func (s *Scope) HasArg(name string) bool {
	if _, ok := s.args[name]; ok {
		return true
	}
	if s.parent != nil {
		return s.parent.HasArg(name)
	}
	return false
}

// GetArg returns the ARG entry for name, searching up the chain.
func (s *Scope) GetArg(name string) *ArgEntry {
	if arg, ok := s.args[name]; ok {
		return arg
	}
	if s.parent != nil {
		return s.parent.GetArg(name)
	}
	return nil
}

// Args returns declared ARGs in declaration order.
func (s *Scope) Args() []*ArgEntry {
	out := make([]*ArgEntry, 0, len(s.argOrder))
	for _, name := range s.argOrder {
		out = append(out, s.args[name])
	}
	return out
}

// Envs returns assigned ENVs in declaration order.
func (s *Scope) Envs() []*EnvEntry {
	out := make([]*EnvEntry, 0, len(s.envOrder))
	for _, name := range s.envOrder {
		out = append(out, s.envs[name])
	}
	return out
}
