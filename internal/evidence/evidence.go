// Package evidence reconciles the statically-inferred Runtime Contract
// Model with observations collected from a live container. The merge rules
// mirror contract.RuntimeContractModel.Upsert's confidence-wins dedup
// invariant, extended with the two cases Upsert alone cannot express: a
// hit that contradicts the static claim (downgrade, never delete) and the
// idempotent "observed" token that must not duplicate on repeated merges.
package evidence

import (
	"context"
	"fmt"
)

// Bundle is the evidence an external probe collected from a running
// container built from the target stage: listening sockets, running
// process names, file existence/mode/owner, and the effective exit user.
// Produced by an external collaborator; consumed read-only.
type Bundle struct {
	Listening []ListeningSocket
	Processes []string
	Files     map[string]FileObservation
	ExitUser  *ExitUser
}

// ListeningSocket is one observed (proto, port) pair.
type ListeningSocket struct {
	Proto string
	Port  int
}

// FileObservation is what the probe found at a path.
type FileObservation struct {
	Exists bool
	Mode   string
	Owner  string
}

// ExitUser is the effective uid/name the probe observed the container
// process running as.
type ExitUser struct {
	UID  string
	Name string
}

// Error is the typed failure an EvidenceSource may return. The core treats
// any of these as "no evidence" and continues with a warning, unless the
// caller declared evidence required, in which case it is propagated.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ErrorKind enumerates the ways an EvidenceSource can fail to collect.
type ErrorKind int

const (
	RuntimeUnavailable ErrorKind = iota
	BuildFailed
	ProbeTimeout
	Denied
)

func (k ErrorKind) String() string {
	switch k {
	case RuntimeUnavailable:
		return "RuntimeUnavailable"
	case BuildFailed:
		return "BuildFailed"
	case ProbeTimeout:
		return "ProbeTimeout"
	case Denied:
		return "Denied"
	default:
		return "Unknown"
	}
}

// BuildPlan is the minimal description of the image an EvidenceSource
// needs to build and probe the target stage; it carries nothing the core
// itself interprets.
type BuildPlan struct {
	DockerfilePath string
	ContextDir     string
	Target         string
	BuildArgs      map[string]string
}

// Source is implemented by the out-of-scope runtime collaborator: it
// builds the image described by plan, runs it, and reports what it
// observed. It is invoked at most once per pipeline run, synchronously,
// before the merge step, and its result is treated as immutable afterward.
type Source interface {
	Collect(ctx context.Context, plan BuildPlan) (*Bundle, error)
}
