package dockerfile

import "github.com/moby/buildkit/frontend/dockerfile/parser"

// Position is a 0-based line/column source coordinate, matching BuildKit's
// own convention so provenance reported by this package lines up with the
// coordinates BuildKit itself would report for the same Dockerfile.
type Position struct {
	Line   int
	Column int
}

// Range is the source span of an instruction, start inclusive, end inclusive.
type Range struct {
	Start Position
	End   Position
}

// rangeFromParser converts a BuildKit parser.Range (already 0-based,
// LSP-style) to our Range. cmd.Location() returns ranges in this form; raw
// parser.Node.StartLine/EndLine are 1-based and must be adjusted by the
// caller before reaching here.
func rangeFromParser(rs []parser.Range) Range {
	if len(rs) == 0 {
		return Range{}
	}
	r := rs[0]
	return Range{
		Start: Position{Line: r.Start.Line, Column: r.Start.Character},
		End:   Position{Line: r.End.Line, Column: r.End.Character},
	}
}

// ArgForm distinguishes the two surface forms RUN/CMD/ENTRYPOINT/SHELL/
// HEALTHCHECK CMD accept.
type ArgForm int

const (
	// FormShell is free text interpreted by the image's shell.
	FormShell ArgForm = iota
	// FormExec is a JSON array, executed directly without a shell.
	FormExec
)

// Kind identifies which Instruction variant a value holds.
type Kind int

const (
	KindFrom Kind = iota
	KindArg
	KindEnv
	KindLabel
	KindWorkdir
	KindUser
	KindExpose
	KindVolume
	KindCopy
	KindAdd
	KindRun
	KindCmd
	KindEntrypoint
	KindHealthcheck
	KindShell
	KindStopsignal
	KindOnbuild
	KindMaintainer
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindFrom:
		return "FROM"
	case KindArg:
		return "ARG"
	case KindEnv:
		return "ENV"
	case KindLabel:
		return "LABEL"
	case KindWorkdir:
		return "WORKDIR"
	case KindUser:
		return "USER"
	case KindExpose:
		return "EXPOSE"
	case KindVolume:
		return "VOLUME"
	case KindCopy:
		return "COPY"
	case KindAdd:
		return "ADD"
	case KindRun:
		return "RUN"
	case KindCmd:
		return "CMD"
	case KindEntrypoint:
		return "ENTRYPOINT"
	case KindHealthcheck:
		return "HEALTHCHECK"
	case KindShell:
		return "SHELL"
	case KindStopsignal:
		return "STOPSIGNAL"
	case KindOnbuild:
		return "ONBUILD"
	case KindMaintainer:
		return "MAINTAINER"
	default:
		return "UNKNOWN"
	}
}

// Instruction is a closed tagged union over every Dockerfile instruction the
// extractor understands. Exactly one of the typed fields is meaningful,
// selected by Kind; this mirrors a sum type without resorting to
// interface{} downcasting at every call site.
type Instruction struct {
	Kind  Kind
	Span  Range
	Raw   string // original instruction text, used for Unknown and diagnostics
	Name  string // instruction keyword as written, for Unknown

	From        *FromInstr
	Arg         *ArgInstr
	Env         []EnvPair
	Label       []EnvPair
	Workdir     string
	User        string
	Expose      []ExposeInstr
	Volume      []string
	Copy        *CopyInstr
	Run         *ExecInstr
	Cmd         *ExecInstr
	Entrypoint  *ExecInstr
	Healthcheck *HealthcheckInstr
	Shell       []string
	Stopsignal  string
	Onbuild     *Instruction
	Maintainer  string
}

// FromInstr is the FROM instruction.
type FromInstr struct {
	Image    string
	Tag      string
	Digest   string
	Alias    string
	Platform string
}

// ArgInstr is a single ARG declaration (BuildKit allows multiple names per
// ARG line; each becomes its own Instruction in the Stage for provenance).
type ArgInstr struct {
	Name    string
	Default *string
}

// EnvPair is one ENV or LABEL key/value assignment.
type EnvPair struct {
	Key   string
	Value string
}

// ExposeInstr is a single EXPOSE port/proto declaration.
type ExposeInstr struct {
	Port  int
	Proto string // "tcp" or "udp", defaults to "tcp"
}

// CopyInstr covers both COPY and ADD (same shape per spec.md §3).
type CopyInstr struct {
	Sources    []string
	Dest       string
	FromStage  string // non-empty for COPY --from=
	Chmod      string
	Chown      string
	IsAdd      bool
	InlineData string // heredoc body, when the source is a heredoc rather than a path
}

// ExecInstr is the shared shape of RUN/CMD/ENTRYPOINT.
type ExecInstr struct {
	Form  ArgForm
	Words []string // exec form: argv; shell form: single-element slice with the raw command text
}

// HealthcheckInstr is a HEALTHCHECK declaration.
type HealthcheckInstr struct {
	Disabled    bool
	Test        *ExecInstr
	Interval    string
	Timeout     string
	StartPeriod string
	Retries     int
}

// Stage is an ordered sequence of Instruction rooted at a FROM, plus the
// base image or stage alias it builds on.
type Stage struct {
	Index        int
	Name         string // alias, empty if unnamed
	Base         FromInstr
	Instructions []Instruction
	Span         Range
}

// LogicalLine preserves the source coordinates of one parsed instruction,
// independent of the Instruction conversion above; used for provenance that
// must point at raw source rather than the converted model.
type LogicalLine struct {
	Number  int
	Span    Range
	Payload string
}
