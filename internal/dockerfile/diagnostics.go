package dockerfile

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/command"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// validInstructions is a sorted list of every instruction keyword BuildKit
// recognises, used only to propose a "did you mean" correction.
var validInstructions = func() []string {
	keys := slices.Collect(maps.Keys(command.Commands))
	slices.Sort(keys)
	return keys
}()

// knownFrontends lists well-known `# syntax=` directive repositories; a
// directive that nearly matches one of these but isn't exact is almost
// always a typo rather than an intentional custom frontend.
var knownFrontends = []string{
	"docker/dockerfile",
	"docker.io/docker/dockerfile",
}

// closestMatch returns the candidate nearest input by Levenshtein distance,
// or "" if none is within maxDist.
func closestMatch(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return best
	}
	return ""
}

func levenshteinDistance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur := make([]int, lb+1)
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(
				cur[j-1]+1,
				prev[j]+1,
				prev[j-1]+cost,
			)
		}
		prev = cur
	}
	return prev[lb]
}

// suggestInstruction appends a "did you mean" hint to an unknown-instruction
// message when a close match exists among BuildKit's known keywords.
func suggestInstruction(name string) string {
	suggestion := closestMatch(strings.ToLower(name), validInstructions, 2)
	if suggestion == "" {
		return fmt.Sprintf("unknown instruction %q ignored", name)
	}
	return fmt.Sprintf("unknown instruction %q ignored (did you mean %q?)", name, strings.ToUpper(suggestion))
}

// checkSyntaxDirective inspects a raw Dockerfile's leading `# syntax=`
// parser directive, if any, and warns when it looks like a typo of a
// well-known frontend rather than a deliberate alternate one.
func checkSyntaxDirective(source []byte) *Warning {
	syntax, _, loc, ok := parser.DetectSyntax(source)
	if !ok || syntax == "" {
		return nil
	}

	line := 1
	if len(loc) > 0 {
		line = loc[0].Start.Line
	}

	if strings.ContainsAny(syntax, " \t") {
		return &Warning{
			Kind:    "SyntaxDirectiveTypo",
			Message: fmt.Sprintf("syntax directive %q contains whitespace", syntax),
			Span:    Range{Start: Position{Line: line}, End: Position{Line: line}},
		}
	}

	repo, tag, _ := strings.Cut(syntax, ":")
	suggestion := closestMatch(repo, knownFrontends, 3)
	if suggestion == "" || suggestion == repo {
		return nil
	}

	suggested := suggestion
	if tag != "" {
		suggested += ":" + tag
	}
	return &Warning{
		Kind:    "SyntaxDirectiveTypo",
		Message: fmt.Sprintf("syntax directive %q appears misspelled (did you mean %q?)", syntax, suggested),
		Span:    Range{Start: Position{Line: line}, End: Position{Line: line}},
	}
}
