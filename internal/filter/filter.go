// Package filter applies the caller's Profile and Policy documents to a
// built RuntimeContractModel before emission, in the fixed five-step order
// spec's §4.6 requires. It never mutates the RCM in place; Apply returns
// the surviving assertions as a fresh slice so a caller can re-filter the
// same RCM under a different profile without re-running the extractor.
package filter

import (
	"github.com/wharflab/dgossgen/internal/contract"
)

// Apply runs the five-step filter pass over rcm's assertions and returns
// the survivors, still in rcm.Sorted's (Kind, Identity) order.
func Apply(rcm *contract.RuntimeContractModel, profile contract.Profile, policy contract.Policy) []contract.Assertion {
	out := make([]contract.Assertion, 0, rcm.Len())

	for _, a := range rcm.Sorted() {
		// 1. Confidence floor.
		if a.Confidence < profile.MinConfidence {
			continue
		}

		// 2. Ignored file paths.
		if a.Kind == contract.KindFile && underIgnoredPath(a.File.Path, policy.IgnorePaths) {
			continue
		}

		// 3. Category off.
		if categoryOff(a.Kind, policy) {
			continue
		}

		// 4. Strip file mode/owner/group when the profile doesn't emit them.
		if a.Kind == contract.KindFile && !profile.EmitFileModes && a.File != nil {
			stripped := *a.File
			stripped.Mode, stripped.Owner, stripped.Group = "", "", ""
			a.File = &stripped
		}

		// 5. Process-specific confidence floor.
		if a.Kind == contract.KindProcess && a.Confidence < profile.ProcessMinConfidence {
			continue
		}

		out = append(out, a)
	}

	return out
}

func underIgnoredPath(path string, ignorePaths []string) bool {
	for _, prefix := range ignorePaths {
		if prefix == "" {
			continue
		}
		if path == prefix || (len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/') {
			return true
		}
	}
	return false
}

func categoryOff(kind contract.Kind, policy contract.Policy) bool {
	switch kind {
	case contract.KindPort:
		return policy.AssertPorts == contract.ModeOff
	case contract.KindProcess:
		return policy.AssertProcess == contract.ModeOff
	default:
		return false
	}
}
