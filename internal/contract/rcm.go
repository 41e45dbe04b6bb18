package contract

import (
	"path"
	"sort"
	"strconv"
	"strings"
)

// RuntimeContractModel is the in-memory structured view of the target
// stage: everything the extractor learned plus the deduplicated assertion
// set. Built mutation-by-mutation by the extractor, then read-only for the
// merger, filter, and emitter.
type RuntimeContractModel struct {
	BaseImage    string
	FinalWorkdir string
	FinalUser    string
	Env          map[string]string
	Volumes      []string
	ExposedPorts []PortAssertion
	Entrypoint   *ExecForm
	Cmd          *ExecForm
	Healthcheck  *CommandAssertion
	CopyPaths    []string
	ServiceHints []string

	assertions map[AssertionKey]Assertion
	// order is the insertion order of keys, used only by Assertions;
	// Sorted, the Report and final YAML emission always re-sort
	// lexicographically by key regardless.
	order []AssertionKey
}

// ExecForm is the resolved argv of an ENTRYPOINT/CMD, independent of
// whether it was declared in exec or shell form.
type ExecForm struct {
	Shell bool
	Words []string
}

// NewRCM returns an empty RCM ready for the extractor to populate.
func NewRCM() *RuntimeContractModel {
	return &RuntimeContractModel{
		Env:        make(map[string]string),
		assertions: make(map[AssertionKey]Assertion),
	}
}

// Upsert inserts a new assertion, or reconciles it with an existing one
// under the same key per the deduplication invariant: the higher-confidence
// entry wins, and its provenance is extended with the displaced entry's
// reason.
func (m *RuntimeContractModel) Upsert(a Assertion) {
	existing, ok := m.assertions[a.Key]
	if !ok {
		m.assertions[a.Key] = a
		m.order = append(m.order, a.Key)
		return
	}

	if a.Confidence > existing.Confidence {
		a.Provenance.Reasons = append(append([]string(nil), existing.Provenance.Reasons...), a.Provenance.Reasons...)
		m.assertions[a.Key] = a
		return
	}

	existing.Provenance.Reasons = append(existing.Provenance.Reasons, a.Provenance.Reasons...)
	m.assertions[a.Key] = existing
}

// Replace unconditionally sets the assertion at key, bypassing the
// confidence-wins dedup invariant Upsert enforces. Used by the evidence
// merger, whose hit/agree and hit/disagree rules (spec's §4.5) are a
// distinct reconciliation policy from the static extractor's Upsert.
func (m *RuntimeContractModel) Replace(key AssertionKey, a Assertion) {
	if _, ok := m.assertions[key]; !ok {
		m.order = append(m.order, key)
	}
	m.assertions[key] = a
}

// Get returns the assertion at key, if any.
func (m *RuntimeContractModel) Get(key AssertionKey) (Assertion, bool) {
	a, ok := m.assertions[key]
	return a, ok
}

// Assertions returns every assertion, in insertion order. Callers needing
// deterministic emission order must sort separately (the emitter does, by
// AssertionKey).
func (m *RuntimeContractModel) Assertions() []Assertion {
	out := make([]Assertion, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.assertions[k])
	}
	return out
}

// Sorted returns every assertion ordered by AssertionKey (Kind, then
// Identity), the order the emitter relies on for byte-reproducibility.
func (m *RuntimeContractModel) Sorted() []Assertion {
	out := m.Assertions()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind < out[j].Key.Kind
		}
		return out[i].Key.Identity < out[j].Key.Identity
	})
	return out
}

// Len reports the number of distinct assertions — useful for verifying the
// dedup invariant in tests.
func (m *RuntimeContractModel) Len() int { return len(m.assertions) }

// NormalizePath lexically cleans a filesystem path for use as a File
// assertion identity.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// NormalizePort formats a port assertion identity as "proto:port".
func NormalizePort(proto string, port int) string {
	if proto == "" {
		proto = "tcp"
	}
	return proto + ":" + strconv.Itoa(port)
}

// NormalizeProcess reduces an argv[0] to its executable basename, per the
// identity normalisation rule.
func NormalizeProcess(argv0 string) string {
	fields := strings.Fields(argv0)
	if len(fields) == 0 {
		return argv0
	}
	return path.Base(fields[0])
}
