package contract

import (
	"context"

	"github.com/distribution/reference"

	"github.com/wharflab/dgossgen/internal/registry"
)

// ParseBaseImage splits a FROM image reference into repository and tag/
// digest components using github.com/distribution/reference, the same
// reference-parsing library the teacher uses for FROM/substring matching
// elsewhere in the pack. Malformed references are returned as-is in Image,
// Tag and Digest left empty — the extractor never fails on an
// unparseable base image, it just corroborates less.
func ParseBaseImage(raw string) (image, tag, digest string) {
	named, err := reference.ParseNormalizedNamed(raw)
	if err != nil {
		return raw, "", ""
	}
	image = reference.FamiliarName(named)
	if tagged, ok := named.(reference.Tagged); ok {
		tag = tagged.Tag()
	}
	if digested, ok := named.(reference.Digested); ok {
		digest = digested.Digest().String()
	}
	return image, tag, digest
}

// BaseDefaults is what CorroborateBaseDefaults recovers from a resolved
// base image's config: the WORKDIR/USER it ships with, plus the exec
// string of a HEALTHCHECK it declares, since a Dockerfile stage that never
// redeclares HEALTHCHECK inherits the base image's.
type BaseDefaults struct {
	Workdir        string
	User           string
	HealthcheckCmd string
	HasHealthcheck bool
}

// CorroborateBaseDefaults optionally consults an ImageResolver to confirm
// the WORKDIR/USER/HEALTHCHECK a stage inherits from its base image, per
// spec's registry-assisted FROM resolution: used only to corroborate
// defaults, never required, and any resolver error is swallowed — the
// extractor proceeds on the Dockerfile's own declarations alone.
func CorroborateBaseDefaults(ctx context.Context, resolver registry.ImageResolver, ref, platform string) BaseDefaults {
	if resolver == nil {
		return BaseDefaults{}
	}
	cfg, err := resolver.ResolveConfig(ctx, ref, platform)
	if err != nil {
		return BaseDefaults{}
	}
	return BaseDefaults{
		Workdir:        cfg.WorkingDir,
		User:           cfg.User,
		HealthcheckCmd: cfg.HealthcheckCmd,
		HasHealthcheck: cfg.HasHealthcheck,
	}
}
