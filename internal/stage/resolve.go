package stage

import (
	"fmt"
	"strconv"

	"github.com/wharflab/dgossgen/internal/dockerfile"
)

// NotFoundError is returned when an explicit target name/index does not
// match any parsed stage.
type NotFoundError struct {
	Target string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("target stage %q not found", e.Target)
}

// Resolve picks the target stage: by numeric index if target parses as an
// integer, by alias otherwise, defaulting to the last stage when target is
// empty.
func Resolve(stages []dockerfile.Stage, target string) (*dockerfile.Stage, int, error) {
	if len(stages) == 0 {
		return nil, -1, fmt.Errorf("no stages parsed")
	}

	if target == "" {
		last := len(stages) - 1
		return &stages[last], last, nil
	}

	if n, err := strconv.Atoi(target); err == nil {
		if n < 0 || n >= len(stages) {
			return nil, -1, &NotFoundError{Target: target}
		}
		return &stages[n], n, nil
	}

	for i := range stages {
		if stages[i].Name == target {
			return &stages[i], i, nil
		}
	}
	return nil, -1, &NotFoundError{Target: target}
}
