// Package shellwords tokenises Dockerfile shell-form text just far enough
// to recover the first command word, per spec's "minimal POSIX-ish
// tokeniser sufficient to extract the first word — do not attempt full
// shell semantics" design note. It wraps mvdan.cc/sh/v3/syntax the way the
// teacher's internal/shell package does, rather than hand-rolling a
// tokenizer.
package shellwords

import (
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Variant selects the shell dialect used to interpret a SHELL instruction's
// argv[0], mirroring the teacher's shell.Variant.
type Variant int

const (
	VariantBash Variant = iota
	VariantPOSIX
	VariantMksh
	VariantNonPOSIX
)

// VariantFromShellCmd derives a Variant from a SHELL instruction's argv,
// falling back to bash for unrecognised or empty input.
func VariantFromShellCmd(shellCmd []string) Variant {
	if len(shellCmd) == 0 {
		return VariantBash
	}
	switch strings.ToLower(path.Base(shellCmd[0])) {
	case "bash", "zsh":
		return VariantBash
	case "sh", "dash", "ash":
		return VariantPOSIX
	case "mksh", "ksh":
		return VariantMksh
	case "powershell", "pwsh", "cmd", "cmd.exe":
		return VariantNonPOSIX
	default:
		return VariantBash
	}
}

func (v Variant) toLangVariant() syntax.LangVariant {
	switch v {
	case VariantPOSIX:
		return syntax.LangPOSIX
	case VariantMksh:
		return syntax.LangMirBSDKorn
	default:
		return syntax.LangBash
	}
}

// ToSyntax exposes the mvdan.cc/sh/v3/syntax dialect a Variant maps to, for
// other packages (servicehint's own syntax.Walk over RUN scripts) that need
// to build their own *syntax.Parser rather than going through FirstWord.
func (v Variant) ToSyntax() syntax.LangVariant {
	return v.toLangVariant()
}

// FirstWord parses script and returns the literal text of its first
// command's argv[0], plus whether extraction succeeded cleanly (no
// unexpanded parameter/command substitution survived in that word — the
// caller uses this to decide between Medium and Low confidence per §4.4).
//
// A NonPOSIX variant, or a script this minimal parser cannot make sense of,
// falls back to a whitespace split of the raw text: good enough to guess a
// process name, never good enough to claim full confidence.
func FirstWord(script string, variant Variant) (word string, clean bool) {
	script = strings.TrimSpace(script)
	if script == "" {
		return "", false
	}

	if variant == VariantNonPOSIX {
		return firstWhitespaceField(script), false
	}

	parser := syntax.NewParser(syntax.Variant(variant.toLangVariant()), syntax.KeepComments(false))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil || len(file.Stmts) == 0 {
		return firstWhitespaceField(script), false
	}

	stmt := file.Stmts[0]
	if stmt == nil || stmt.Cmd == nil {
		return firstWhitespaceField(script), false
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok || len(call.Args) == 0 {
		return firstWhitespaceField(script), false
	}

	w := call.Args[0]
	if lit := w.Lit(); lit != "" {
		return lit, true
	}

	// The word contains expansions (e.g. "$APP_BIN"); best-effort render its
	// literal fragments but flag it as not clean.
	var b strings.Builder
	for _, part := range w.Parts {
		if lit, ok := part.(*syntax.Lit); ok {
			b.WriteString(lit.Value)
		}
	}
	if b.Len() > 0 {
		return b.String(), false
	}
	return firstWhitespaceField(script), false
}

func firstWhitespaceField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Basename trims a path down to its final component, matching how argv[0]
// of an exec-form ENTRYPOINT/CMD is reduced to a process name.
func Basename(word string) string {
	if word == "" {
		return ""
	}
	return path.Base(word)
}
