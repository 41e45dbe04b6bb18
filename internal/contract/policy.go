package contract

// CategoryMode governs whether a named assertion category is required,
// optional, or suppressed entirely by policy.
type CategoryMode string

const (
	ModeRequired CategoryMode = "required"
	ModeOptional CategoryMode = "optional"
	ModeOff      CategoryMode = "off"
)

// Profile is a named bundle of confidence thresholds and emission toggles
// (minimal, standard, strict). Decoding a document into this shape is the
// caller's job — struct tags only describe the expected shape for
// github.com/knadh/koanf, per spec's "consumed, not parsed, by the core".
type Profile struct {
	Name                 string     `koanf:"name"`
	MinConfidence        Confidence `koanf:"-"`
	EmitFileModes        bool       `koanf:"emit_file_modes"`
	ProcessMinConfidence Confidence `koanf:"-"`
}

// MinimalProfile, StandardProfile, and StrictProfile are the three named
// profiles the README documents; callers may also decode a custom profile.
var (
	MinimalProfile  = Profile{Name: "minimal", MinConfidence: Medium, EmitFileModes: false, ProcessMinConfidence: Medium}
	StandardProfile = Profile{Name: "standard", MinConfidence: Low, EmitFileModes: false, ProcessMinConfidence: Low}
	StrictProfile   = Profile{Name: "strict", MinConfidence: Low, EmitFileModes: true, ProcessMinConfidence: Low}
)

// WaitTiming holds the caller-configured wait-file timing parameters.
type WaitTiming struct {
	TimeoutMS       int `koanf:"timeout_ms"`
	RetryIntervalMS int `koanf:"retry_interval_ms"`
}

// Policy is the caller-derived document (.dgossgen.yml in the README),
// additional to Profile: which categories are required/optional/off, HTTP
// checks, ignored paths, and wait timing. Decoding remains the caller's
// job; this module only defines the shape.
type Policy struct {
	AssertPorts     CategoryMode    `koanf:"assert_ports"`
	AssertProcess   CategoryMode    `koanf:"assert_process"`
	HTTPChecks      bool            `koanf:"http_checks"`
	IgnorePaths     []string        `koanf:"ignore_paths"`
	ServicePatterns map[string]Hint `koanf:"service_patterns"`
	SecretPatterns  []string        `koanf:"secret_patterns"`
	Wait            WaitTiming      `koanf:"wait"`
	ForceWait       bool            `koanf:"force_wait"`
	DisableWait     bool            `koanf:"disable_wait"`
	RequireEvidence bool            `koanf:"require_evidence"`
}

// Hint is the policy-document shape of a user-supplied service pattern
// extension, mirroring internal/servicehint.Hint's fields under koanf tags.
type Hint struct {
	Name         string `koanf:"name"`
	Process      string `koanf:"process"`
	ConfigPath   string `koanf:"config_path"`
	VersionProbe string `koanf:"version_probe"`
}

// DefaultPolicy returns a zero-value Policy with the spec's documented
// defaults (ports/process required, default secret pattern set applied by
// the extractor when SecretPatterns is empty).
func DefaultPolicy() Policy {
	return Policy{
		AssertPorts:   ModeRequired,
		AssertProcess: ModeRequired,
	}
}
