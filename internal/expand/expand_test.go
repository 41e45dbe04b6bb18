package expand

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wharflab/dgossgen/internal/dockerfile"
)

func TestScope_EnvShadowsArg(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	def := "1.0"
	s.Declare("VERSION", &def, dockerfile.Range{})
	s.Set("VERSION", "2.0", dockerfile.Range{})

	v, ok := s.Resolve("VERSION", nil)
	require.True(t, ok)
	require.Equal(t, "2.0", v)
}

func TestScope_GlobalArgNotVisibleUntilRedeclared(t *testing.T) {
	t.Parallel()
	global := NewGlobalScope()
	def := "alpine"
	global.Declare("BASE_IMAGE", &def, dockerfile.Range{})

	stage := NewStageScope(global)
	_, ok := stage.Resolve("BASE_IMAGE", nil)
	require.False(t, ok)

	stage.Declare("BASE_IMAGE", nil, dockerfile.Range{})
	v, ok := stage.Resolve("BASE_IMAGE", nil)
	require.True(t, ok)
	require.Equal(t, "alpine", v)
}

func TestScope_BuildArgOverridesDefault(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	def := "1.0"
	s.Declare("VERSION", &def, dockerfile.Range{})

	v, ok := s.Resolve("VERSION", map[string]string{"VERSION": "2.0"})
	require.True(t, ok)
	require.Equal(t, "2.0", v)
}

func TestExpander_SimpleAndBraced(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	s.Set("NAME", "nginx", dockerfile.Range{})
	x := NewExpander(s, nil)

	out, warnings := x.Word("hello-$NAME-${NAME}", dockerfile.Range{})
	require.Empty(t, warnings)
	require.Equal(t, "hello-nginx-nginx", out)
}

func TestExpander_DefaultAndAlt(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	x := NewExpander(s, nil)

	out, warnings := x.Word("${MISSING:-fallback}", dockerfile.Range{})
	require.Empty(t, warnings)
	require.Equal(t, "fallback", out)

	s.Set("SET", "1", dockerfile.Range{})
	out, warnings = x.Word("${SET:+alt}", dockerfile.Range{})
	require.Empty(t, warnings)
	require.Equal(t, "alt", out)
}

func TestExpander_UnresolvedWarns(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	x := NewExpander(s, nil)

	out, warnings := x.Word("$UNKNOWN", dockerfile.Range{})
	require.Equal(t, "", out)
	require.Len(t, warnings, 1)
	require.Equal(t, "UNKNOWN", warnings[0].Name)
}

func TestExpander_WordsExpandsEachElementIndependently(t *testing.T) {
	t.Parallel()
	s := NewStageScope(NewGlobalScope())
	s.Set("PORT", "8080", dockerfile.Range{})
	x := NewExpander(s, nil)

	out, warnings := x.Words([]string{"nginx", "-p", "$PORT"}, dockerfile.Range{})
	require.Empty(t, warnings)
	require.Equal(t, []string{"nginx", "-p", "8080"}, out)
}
