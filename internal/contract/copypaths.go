package contract

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// materializeDestPaths computes the concrete destination paths a COPY/ADD
// instruction produces, per the rule: if dest ends with "/" or equals
// currentWorkdir, each source's basename is appended; with more than one
// source, or a wildcard source matching more than one file, each basename is
// appended too; otherwise dest is the final path. A relative dest is
// resolved against currentWorkdir (default "/").
//
// When buildContext is non-empty, wildcard sources are expanded against its
// directory listing with github.com/bmatcuk/doublestar/v4 (the teacher's
// glob-matching dependency, used here for source-side glob expansion rather
// than ignore-pattern matching); when the context is unavailable, or a
// source has no glob metacharacters, the literal source is used as-is.
func materializeDestPaths(sources []string, dest, currentWorkdir, buildContext string) []string {
	if currentWorkdir == "" {
		currentWorkdir = "/"
	}
	trailingSlash := strings.HasSuffix(dest, "/")
	dest = resolveAgainstWorkdir(dest, currentWorkdir)

	expandDir := trailingSlash || dest == currentWorkdir

	var out []string
	for _, src := range sources {
		matches := expandSource(src, buildContext)
		for _, m := range matches {
			if expandDir || len(matches) > 1 || len(sources) > 1 {
				out = append(out, path.Join(dest, path.Base(m)))
				continue
			}
			out = append(out, dest)
		}
	}
	return out
}

func resolveAgainstWorkdir(dest, workdir string) string {
	if dest == "" {
		return workdir
	}
	if strings.HasPrefix(dest, "/") {
		return dest
	}
	return path.Join(workdir, dest)
}

func expandSource(src, buildContext string) []string {
	if buildContext == "" || !hasGlobMeta(src) {
		return []string{src}
	}
	matches, err := doublestar.Glob(os.DirFS(buildContext), strings.TrimPrefix(src, "/"))
	if err != nil || len(matches) == 0 {
		return []string{src}
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = filepath.ToSlash(m)
	}
	return out
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
