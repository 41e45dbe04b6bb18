// Package servicehint recognises common service images and installed
// packages and contributes the canned assertions spec's Contract Extractor
// needs for them: a process, a canonical config file, and a version-probe
// command, each at Medium confidence with provenance naming the hint
// itself rather than a single source line.
package servicehint

import (
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/wharflab/dgossgen/internal/shellwords"
)

// Hint is one recognised service pattern.
type Hint struct {
	// Name identifies the hint in provenance text ("<name> service pattern").
	Name string
	// Process is the expected running process basename.
	Process string
	// ConfigPath is the canonical config file this service ships with.
	ConfigPath string
	// VersionProbe is a command whose successful exit confirms the binary
	// is present (e.g. "nginx -v").
	VersionProbe string
}

// defaultTable is the built-in substring table, keyed by a lowercase
// substring matched against either the base image reference or an
// installed package name. Policy's service_patterns extend, never replace,
// this table.
var defaultTable = []struct {
	substr string
	hint   Hint
}{
	{"nginx", Hint{Name: "nginx", Process: "nginx", ConfigPath: "/etc/nginx/nginx.conf", VersionProbe: "nginx -v"}},
	{"node", Hint{Name: "node", Process: "node", ConfigPath: "/usr/local/etc/node/default.json", VersionProbe: "node --version"}},
	{"python", Hint{Name: "python", Process: "python3", ConfigPath: "/etc/python3/sitecustomize.py", VersionProbe: "python3 --version"}},
	{"php", Hint{Name: "php", Process: "php-fpm", ConfigPath: "/usr/local/etc/php-fpm.conf", VersionProbe: "php --version"}},
	{"postgres", Hint{Name: "postgres", Process: "postgres", ConfigPath: "/var/lib/postgresql/data/postgresql.conf", VersionProbe: "postgres --version"}},
	{"redis", Hint{Name: "redis", Process: "redis-server", ConfigPath: "/etc/redis/redis.conf", VersionProbe: "redis-server --version"}},
	{"httpd", Hint{Name: "apache", Process: "httpd", ConfigPath: "/usr/local/apache2/conf/httpd.conf", VersionProbe: "httpd -v"}},
}

// Table holds the effective set of hints: the built-in table plus any
// caller-supplied extensions from policy's service_patterns.
type Table struct {
	entries []struct {
		substr string
		hint   Hint
	}
}

// NewTable builds the effective table from the built-in entries plus extra
// policy-supplied hints, matched by the same substring rule.
func NewTable(extra map[string]Hint) *Table {
	t := &Table{entries: append([]struct {
		substr string
		hint   Hint
	}(nil), defaultTable...)}
	for substr, hint := range extra {
		t.entries = append(t.entries, struct {
			substr string
			hint   Hint
		}{strings.ToLower(substr), hint})
	}
	return t
}

// MatchImage returns hints whose substring appears in the base image
// reference (case-insensitive).
func (t *Table) MatchImage(image string) []Hint {
	lower := strings.ToLower(image)
	var out []Hint
	seen := make(map[string]bool)
	for _, e := range t.entries {
		if strings.Contains(lower, e.substr) && !seen[e.hint.Name] {
			out = append(out, e.hint)
			seen[e.hint.Name] = true
		}
	}
	return out
}

// MatchPackages returns hints whose substring appears in any installed
// package name from a RUN apt-get/apk/yum/pip install line.
func (t *Table) MatchPackages(packages []string) []Hint {
	var out []Hint
	seen := make(map[string]bool)
	for _, pkg := range packages {
		lower := strings.ToLower(pkg)
		for _, e := range t.entries {
			if strings.Contains(lower, e.substr) && !seen[e.hint.Name] {
				out = append(out, e.hint)
				seen[e.hint.Name] = true
			}
		}
	}
	return out
}

// PackageManager identifies a system or language package manager whose
// install commands feed the package-name heuristic.
type PackageManager string

const (
	PackageManagerApt PackageManager = "apt"
	PackageManagerApk PackageManager = "apk"
	PackageManagerYum PackageManager = "yum"
	PackageManagerPip PackageManager = "pip"
)

var installCommands = map[string]struct {
	manager PackageManager
	subcmds []string
}{
	"apt-get": {PackageManagerApt, []string{"install"}},
	"apt":     {PackageManagerApt, []string{"install"}},
	"apk":     {PackageManagerApk, []string{"add"}},
	"yum":     {PackageManagerYum, []string{"install"}},
	"pip":     {PackageManagerPip, []string{"install"}},
	"pip3":    {PackageManagerPip, []string{"install"}},
}

// ExtractPackages parses a RUN instruction's shell-form words for
// "<manager> install <pkgs...>" invocations, across chained commands
// (&&/;/|) since a single RUN line commonly chains several. It walks a real
// mvdan.cc/sh/v3/syntax AST the way the teacher's shell.ExtractPackageInstalls
// does, rather than a naive whitespace split, so quoting, subshells, and
// command separators are handled the way a shell would actually see them.
// variant selects the dialect the SHELL instruction declared; a NonPOSIX
// variant (cmd.exe, PowerShell) has no POSIX grammar to parse, so it always
// falls back to the simple splitter.
func ExtractPackages(words []string, variant shellwords.Variant) []string {
	script := strings.Join(words, " ")
	if variant == shellwords.VariantNonPOSIX {
		return extractPackagesSimple(script)
	}

	parser := syntax.NewParser(syntax.Variant(variant.ToSyntax()), syntax.KeepComments(false))
	prog, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return extractPackagesSimple(script)
	}

	var packages []string
	syntax.Walk(prog, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		cmdName := path.Base(call.Args[0].Lit())
		if cmdName == "" {
			return true
		}
		spec, ok := installCommands[cmdName]
		if !ok {
			return true
		}

		args := make([]string, 0, len(call.Args)-1)
		for _, arg := range call.Args[1:] {
			var b strings.Builder
			for _, part := range arg.Parts {
				switch p := part.(type) {
				case *syntax.Lit:
					b.WriteString(p.Value)
				case *syntax.SglQuoted:
					b.WriteString(p.Value)
				case *syntax.DblQuoted:
					for _, dp := range p.Parts {
						if l, ok := dp.(*syntax.Lit); ok {
							b.WriteString(l.Value)
						}
					}
				}
			}
			if lit := b.String(); lit != "" {
				args = append(args, lit)
			}
		}
		packages = append(packages, installArgsToPackages(args, spec.subcmds)...)
		return true
	})
	return packages
}

// installArgsToPackages finds the install subcommand within a package
// manager invocation's arguments and returns every non-flag argument after
// it.
func installArgsToPackages(args []string, subcmds []string) []string {
	idx := -1
	for i, f := range args {
		for _, sub := range subcmds {
			if f == sub {
				idx = i
				break
			}
		}
		if idx >= 0 {
			break
		}
	}
	if idx < 0 {
		return nil
	}

	var packages []string
	for _, arg := range args[idx+1:] {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		packages = append(packages, arg)
	}
	return packages
}

// extractPackagesSimple is the fallback for scripts the POSIX-ish parser
// can't make sense of (or a declared NonPOSIX shell): a whitespace split
// good enough to guess package names, never good enough to claim the
// parser actually understood command boundaries.
func extractPackagesSimple(script string) []string {
	var packages []string
	for _, segment := range splitChain(script) {
		fields := strings.Fields(segment)
		if len(fields) < 2 {
			continue
		}
		spec, ok := installCommands[fields[0]]
		if !ok {
			continue
		}
		rest := installArgsToPackages(fields[1:], spec.subcmds)
		packages = append(packages, rest...)
	}
	return packages
}

func splitChain(s string) []string {
	replacer := strings.NewReplacer("&&", "\x00", "||", "\x00", ";", "\x00", "|", "\x00")
	return strings.Split(replacer.Replace(s), "\x00")
}

// ProvenanceReason renders the hint's non-source-line provenance text.
func ProvenanceReason(name string) string {
	return fmt.Sprintf("%s service pattern", name)
}
