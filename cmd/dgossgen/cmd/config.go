package cmd

import (
	"fmt"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/wharflab/dgossgen/internal/contract"
)

// namedProfile resolves one of the three documented profiles by name.
func namedProfile(name string) (contract.Profile, error) {
	switch name {
	case "", "standard":
		return contract.StandardProfile, nil
	case "minimal":
		return contract.MinimalProfile, nil
	case "strict":
		return contract.StrictProfile, nil
	default:
		return contract.Profile{}, fmt.Errorf("unknown profile %q: want minimal, standard, or strict", name)
	}
}

// mergeProfileOverrides layers flag-derived overrides onto a named
// profile's koanf-tagged fields, the way the teacher's config.Load layers
// structs.Provider(Default(), "koanf") before an overlay and a final
// Unmarshal. Both inputs are already-decoded Go structs (flags, not a
// file), so only the structs provider is needed.
func mergeProfileOverrides(base contract.Profile, overrides contract.Profile) (contract.Profile, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(base, "koanf"), nil); err != nil {
		return contract.Profile{}, err
	}
	if err := k.Load(structs.Provider(overrides, "koanf"), nil); err != nil {
		return contract.Profile{}, err
	}

	out := base
	if err := k.Unmarshal("", &out); err != nil {
		return contract.Profile{}, err
	}
	return out, nil
}

func parseCategoryMode(s string) (contract.CategoryMode, error) {
	switch s {
	case "", "required":
		return contract.ModeRequired, nil
	case "optional":
		return contract.ModeOptional, nil
	case "off":
		return contract.ModeOff, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want required, optional, or off", s)
	}
}
