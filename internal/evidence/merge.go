package evidence

import (
	"strings"

	"github.com/wharflab/dgossgen/internal/contract"
)

const (
	observedToken = "observed"
	discoveredVia = "discovered via probe"
)

// Merge reconciles bundle into rcm in place, per the three cases: hit/agree
// raises confidence to High and appends the "observed" token; hit/disagree
// downgrades to Low and records the contradiction without deleting the
// assertion; miss inserts a new Medium-confidence assertion. The merge is
// idempotent: applying the same bundle twice leaves rcm unchanged on the
// second pass, since confidence is already High, "observed" is only
// appended once per assertion, and an assertion the probe itself inserted
// is not upgraded by a later hit.
func Merge(rcm *contract.RuntimeContractModel, bundle *Bundle) {
	if bundle == nil {
		return
	}
	mergePorts(rcm, bundle.Listening)
	mergeProcesses(rcm, bundle.Processes)
	mergeFiles(rcm, bundle.Files)
	mergeUser(rcm, bundle.ExitUser)
}

func mergePorts(rcm *contract.RuntimeContractModel, listening []ListeningSocket) {
	observedSet := make(map[string]ListeningSocket, len(listening))
	for _, l := range listening {
		proto := l.Proto
		if proto == "" {
			proto = "tcp"
		}
		observedSet[contract.NormalizePort(proto, l.Port)] = ListeningSocket{Proto: proto, Port: l.Port}
	}

	for identity, sock := range observedSet {
		key := contract.AssertionKey{Kind: contract.KindPort, Identity: identity}
		existing, ok := rcm.Get(key)
		if !ok {
			rcm.Upsert(contract.Assertion{
				Kind: contract.KindPort, Key: key, Confidence: contract.Medium,
				Provenance: contract.Provenance{Reasons: []string{discoveredVia}},
				Port:       &contract.PortAssertion{Proto: sock.Proto, Port: sock.Port, Listening: true},
			})
			continue
		}
		upgradeToHigh(rcm, key, existing, contract.Assertion{
			Kind: contract.KindPort, Key: key, Confidence: contract.High,
			Port: &contract.PortAssertion{Proto: sock.Proto, Port: sock.Port, Listening: true},
		})
	}
}

func mergeProcesses(rcm *contract.RuntimeContractModel, processes []string) {
	observedSet := make(map[string]struct{}, len(processes))
	for _, p := range processes {
		observedSet[contract.NormalizeProcess(p)] = struct{}{}
	}

	for name := range observedSet {
		key := contract.AssertionKey{Kind: contract.KindProcess, Identity: name}
		existing, ok := rcm.Get(key)
		if !ok {
			rcm.Upsert(contract.Assertion{
				Kind: contract.KindProcess, Key: key, Confidence: contract.Medium,
				Provenance: contract.Provenance{Reasons: []string{discoveredVia}},
				Process:    &contract.ProcessAssertion{Name: name, Running: true},
			})
			continue
		}
		upgradeToHigh(rcm, key, existing, contract.Assertion{
			Kind: contract.KindProcess, Key: key, Confidence: contract.High,
			Process: &contract.ProcessAssertion{Name: name, Running: true},
		})
	}

	// An expected process that the probe's process list never reported is
	// a contradiction: the claim exists statically but evidence disagrees.
	for _, a := range rcm.Assertions() {
		if a.Kind != contract.KindProcess {
			continue
		}
		if _, seen := observedSet[a.Key.Identity]; seen {
			continue
		}
		if strings.Contains(strings.Join(a.Provenance.Reasons, ";"), discoveredVia) {
			continue
		}
		downgrade(rcm, a, "expected process not observed running")
	}
}

func mergeFiles(rcm *contract.RuntimeContractModel, files map[string]FileObservation) {
	for rawPath, obs := range files {
		path := contract.NormalizePath(rawPath)
		key := contract.AssertionKey{Kind: contract.KindFile, Identity: path}
		existing, ok := rcm.Get(key)

		if !obs.Exists {
			if ok {
				downgrade(rcm, existing, "expected file missing")
			}
			continue
		}

		fa := &contract.FileAssertion{Path: path, Exists: true, Mode: obs.Mode, Owner: obs.Owner}
		if !ok {
			rcm.Upsert(contract.Assertion{
				Kind: contract.KindFile, Key: key, Confidence: contract.Medium,
				Provenance: contract.Provenance{Reasons: []string{discoveredVia}},
				File:       fa,
			})
			continue
		}
		upgradeToHigh(rcm, key, existing, contract.Assertion{
			Kind: contract.KindFile, Key: key, Confidence: contract.High, File: fa,
		})
	}
}

func mergeUser(rcm *contract.RuntimeContractModel, observed *ExitUser) {
	if observed == nil {
		return
	}
	identity := observed.UID
	if identity == "" {
		identity = observed.Name
	}
	if identity == "" {
		return
	}

	key := contract.AssertionKey{Kind: contract.KindUser, Identity: identity}
	existing, ok := rcm.Get(key)
	ua := &contract.UserAssertion{UID: observed.UID, Name: observed.Name}
	if !ok {
		rcm.Upsert(contract.Assertion{
			Kind: contract.KindUser, Key: key, Confidence: contract.Medium,
			Provenance: contract.Provenance{Reasons: []string{discoveredVia}},
			User:       ua,
		})
		return
	}
	upgradeToHigh(rcm, key, existing, contract.Assertion{
		Kind: contract.KindUser, Key: key, Confidence: contract.High, User: ua,
	})
}

// upgradeToHigh applies the hit/agree rule: replace confidence with High and
// append the "observed" token to provenance exactly once, regardless of how
// many times the same bundle is merged. Replace, not Upsert, is used
// because the evidence merger's reconciliation rules supersede the static
// confidence-wins invariant outright rather than competing under it. An
// assertion whose only ground is an earlier probe miss keeps its Medium
// confidence, so merging the same bundle again changes nothing.
func upgradeToHigh(rcm *contract.RuntimeContractModel, key contract.AssertionKey, existing, upgrade contract.Assertion) {
	if containsToken(existing.Provenance.Reasons, discoveredVia) {
		return
	}
	reasons := append([]string(nil), existing.Provenance.Reasons...)
	if !containsToken(reasons, observedToken) {
		reasons = append(reasons, observedToken)
	}
	upgrade.Provenance = contract.Provenance{Reasons: reasons, Span: existing.Provenance.Span}
	rcm.Replace(key, upgrade)
}

// downgrade applies the hit/disagree rule: confidence drops to Low and the
// contradiction is recorded, without deleting the assertion. Once a
// contradiction token for the same reason is present, re-merging the same
// bundle does not duplicate it.
func downgrade(rcm *contract.RuntimeContractModel, existing contract.Assertion, reason string) {
	token := "contradicted by probe: " + reason
	reasons := append([]string(nil), existing.Provenance.Reasons...)
	if !containsToken(reasons, token) {
		reasons = append(reasons, token)
	}
	downgraded := existing
	downgraded.Confidence = contract.Low
	downgraded.Provenance = contract.Provenance{Reasons: reasons, Span: existing.Provenance.Span}
	rcm.Replace(existing.Key, downgraded)
}

func containsToken(reasons []string, token string) bool {
	for _, r := range reasons {
		if r == token {
			return true
		}
	}
	return false
}
