// Package emit renders a filtered assertion set into the two goss-style
// YAML documents spec's §4.7 describes: the main document (one section per
// assertion kind) and, when applicable, a wait-file document. Output is
// built by hand rather than through a generic marshaller so that section
// order, key order, and the per-assertion provenance comment are exactly
// reproducible byte-for-byte across runs on the same input.
package emit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wharflab/dgossgen/internal/contract"
)

// Documents is the emitter's output: the primary assertion document and,
// when warranted, the wait-file document.
type Documents struct {
	Main []byte
	Wait []byte // nil when no wait file is produced
}

// WaitPolicy carries the caller's wait-file generation preferences from
// policy/profile: ForceWait produces one whenever there is a healthcheck,
// port or process to wait on (and none otherwise), DisableWait always
// suppresses it, and otherwise it is produced when a healthcheck exists or
// exactly one port is asserted.
type WaitPolicy struct {
	ForceWait   bool
	DisableWait bool
	TimeoutMS   int
	RetryMS     int
}

// sectionOrder is the fixed, spec-mandated section order: file, port,
// process, command, user.
var sectionOrder = []contract.Kind{
	contract.KindFile, contract.KindPort, contract.KindProcess, contract.KindCommand, contract.KindUser,
}

func sectionName(k contract.Kind) string {
	switch k {
	case contract.KindFile:
		return "file"
	case contract.KindPort:
		return "port"
	case contract.KindProcess:
		return "process"
	case contract.KindCommand:
		return "command"
	case contract.KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Emit renders assertions (already filtered and sorted by kind/identity
// ascending — contract.RuntimeContractModel.Sorted's order, though Emit
// re-sorts defensively) plus an optional healthcheck into the two
// documents.
func Emit(assertions []contract.Assertion, healthcheck *contract.CommandAssertion, wait WaitPolicy) Documents {
	byKind := make(map[contract.Kind][]contract.Assertion, len(sectionOrder))
	for _, a := range assertions {
		byKind[a.Kind] = append(byKind[a.Kind], a)
	}
	for k := range byKind {
		sort.Slice(byKind[k], func(i, j int) bool {
			return byKind[k][i].Key.Identity < byKind[k][j].Key.Identity
		})
	}

	var b strings.Builder
	labelSeen := make(map[string]int)
	for _, kind := range sectionOrder {
		entries := byKind[kind]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", sectionName(kind))
		for _, a := range entries {
			writeComment(&b, a.Provenance)
			writeEntry(&b, a, labelSeen)
		}
	}

	main := []byte(b.String())

	var waitDoc []byte
	onePort := len(byKind[contract.KindPort]) == 1
	if !wait.DisableWait && (wait.ForceWait || healthcheck != nil || onePort) {
		waitDoc = buildWaitDoc(byKind, healthcheck, wait)
	}

	return Documents{Main: main, Wait: waitDoc}
}

func writeComment(b *strings.Builder, p contract.Provenance) {
	fmt.Fprintf(b, "  # derived from %s\n", p.Rendered())
}

func writeEntry(b *strings.Builder, a contract.Assertion, labelSeen map[string]int) {
	switch a.Kind {
	case contract.KindFile:
		writeFileEntry(b, a)
	case contract.KindPort:
		writePortEntry(b, a)
	case contract.KindProcess:
		writeProcessEntry(b, a)
	case contract.KindCommand:
		writeCommandEntry(b, a, labelSeen)
	case contract.KindUser:
		writeUserEntry(b, a)
	}
}

func writeFileEntry(b *strings.Builder, a contract.Assertion) {
	f := a.File
	fmt.Fprintf(b, "  %s:\n", quoteKey(f.Path))
	fmt.Fprintf(b, "    exists: %t\n", f.Exists)
	if f.FileType != "" {
		fmt.Fprintf(b, "    filetype: %s\n", scalar(f.FileType))
	}
	if f.Mode != "" {
		fmt.Fprintf(b, "    mode: %s\n", scalar(f.Mode))
	}
	if f.Owner != "" {
		fmt.Fprintf(b, "    owner: %s\n", scalar(f.Owner))
	}
	if f.Group != "" {
		fmt.Fprintf(b, "    group: %s\n", scalar(f.Group))
	}
}

func writePortEntry(b *strings.Builder, a contract.Assertion) {
	p := a.Port
	fmt.Fprintf(b, "  %s:\n", quoteKey(a.Key.Identity))
	fmt.Fprintf(b, "    listening: %t\n", p.Listening)
}

func writeProcessEntry(b *strings.Builder, a contract.Assertion) {
	p := a.Process
	fmt.Fprintf(b, "  %s:\n", quoteKey(p.Name))
	fmt.Fprintf(b, "    running: %t\n", p.Running)
}

func writeCommandEntry(b *strings.Builder, a contract.Assertion, labelSeen map[string]int) {
	c := a.Command
	label := c.Label
	if label == "" {
		label = contract.CommandLabel(c.Exec, labelSeen)
	}
	fmt.Fprintf(b, "  %s:\n", quoteKey(label))
	fmt.Fprintf(b, "    exec: %s\n", scalar(c.Exec))
	fmt.Fprintf(b, "    exit-status: %d\n", c.ExpectedExit)
	if c.TimeoutMS > 0 {
		fmt.Fprintf(b, "    timeout: %d\n", c.TimeoutMS)
	}
}

func writeUserEntry(b *strings.Builder, a contract.Assertion) {
	u := a.User
	identity := u.UID
	if identity == "" {
		identity = u.Name
	}
	fmt.Fprintf(b, "  %s:\n", quoteKey(identity))
	fmt.Fprintf(b, "    exists: true\n")
}

// buildWaitDoc selects exactly one wait entry per category, in priority
// order healthcheck command -> primary port -> primary process.
func buildWaitDoc(byKind map[contract.Kind][]contract.Assertion, healthcheck *contract.CommandAssertion, wait WaitPolicy) []byte {
	var b strings.Builder

	switch {
	case healthcheck != nil:
		label := healthcheck.Label
		if label == "" {
			label = "healthcheck"
		}
		fmt.Fprintf(&b, "command:\n  %s:\n    exec: %s\n    exit-status: %d\n", quoteKey(label), scalar(healthcheck.Exec), healthcheck.ExpectedExit)
	case len(byKind[contract.KindPort]) > 0:
		p := byKind[contract.KindPort][0]
		fmt.Fprintf(&b, "port:\n  %s:\n    listening: true\n", quoteKey(p.Key.Identity))
	case len(byKind[contract.KindProcess]) > 0:
		p := byKind[contract.KindProcess][0]
		fmt.Fprintf(&b, "process:\n  %s:\n    running: true\n", quoteKey(p.Process.Name))
	default:
		return nil
	}

	timeout := wait.TimeoutMS
	if timeout <= 0 {
		timeout = 10000
	}
	retry := wait.RetryMS
	if retry <= 0 {
		retry = 500
	}
	fmt.Fprintf(&b, "retry-timeout: %d\nsleep: %d\n", timeout, retry)

	return []byte(b.String())
}

// scalar renders a YAML scalar: double-quoted when it contains whitespace
// or a reserved character, unquoted otherwise.
func scalar(s string) string {
	if needsQuoting(s) {
		return strconv.Quote(s)
	}
	return s
}

func quoteKey(s string) string {
	return scalar(s)
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, " \t:{}[]#&*!|>'\"%@`,") {
		return true
	}
	switch s {
	case "true", "false", "null", "~":
		return true
	}
	return false
}
