package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_BasicStages(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18 AS builder\nRUN echo hello\n\nFROM alpine:3.18\nCOPY --from=builder /app /app\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.Len(t, result.Stages, 2)
	require.Equal(t, "builder", result.Stages[0].Name)
	require.Equal(t, "", result.Stages[1].Name)
	require.Equal(t, "alpine:3.18", result.Stages[0].Base.Image)
}

func TestParse_Heredoc(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nRUN <<EOF\necho one\necho two\nEOF\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.Len(t, result.Stages, 1)

	run := findInstr(t, result.Stages[0], KindRun)
	require.NotNil(t, run.Run)
	joined := strings.Join(run.Run.Words, "\n")
	require.Contains(t, joined, "echo one")
	require.Contains(t, joined, "echo two")
}

func TestParse_MetaArgsBeforeFrom(t *testing.T) {
	t.Parallel()
	content := "ARG BASE_IMAGE=alpine\nARG VERSION=3.18\nFROM ${BASE_IMAGE}:${VERSION}\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.Len(t, result.GlobalArgs, 2)
	require.Equal(t, "BASE_IMAGE", result.GlobalArgs[0].Name)
	require.Equal(t, "VERSION", result.GlobalArgs[1].Name)
}

func TestParse_MultiNameArgBecomesSeparateInstructions(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nARG A=1 B=2\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)

	var names []string
	for _, instr := range result.Stages[0].Instructions {
		if instr.Kind == KindArg {
			names = append(names, instr.Arg.Name)
		}
	}
	require.Equal(t, []string{"A", "B"}, names)
}

func TestParse_ExecVsShellForm(t *testing.T) {
	t.Parallel()
	content := `FROM alpine:3.18
CMD ["nginx", "-g", "daemon off;"]
ENTRYPOINT echo hi
`
	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)

	cmd := findInstr(t, result.Stages[0], KindCmd)
	require.Equal(t, FormExec, cmd.Cmd.Form)
	require.Equal(t, []string{"nginx", "-g", "daemon off;"}, cmd.Cmd.Words)

	entry := findInstr(t, result.Stages[0], KindEntrypoint)
	require.Equal(t, FormShell, entry.Entrypoint.Form)
}

func TestParse_ExposeParsesPortAndProto(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nEXPOSE 80 443/tcp 53/udp\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)

	expose := findInstr(t, result.Stages[0], KindExpose)
	require.Len(t, expose.Expose, 3)
	require.Equal(t, ExposeInstr{Port: 80, Proto: "tcp"}, expose.Expose[0])
	require.Equal(t, ExposeInstr{Port: 443, Proto: "tcp"}, expose.Expose[1])
	require.Equal(t, ExposeInstr{Port: 53, Proto: "udp"}, expose.Expose[2])
}

func TestParse_HealthcheckNone(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nHEALTHCHECK NONE\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)

	hc := findInstr(t, result.Stages[0], KindHealthcheck)
	require.True(t, hc.Healthcheck.Disabled)
}

func TestParse_DuplicateStageAliasIsFatal(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18 AS builder\nFROM alpine:3.18 AS builder\n"

	_, err := Parse(strings.NewReader(content), "Dockerfile")
	require.Error(t, err)

	var dup *DuplicateStageAliasError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "builder", dup.Alias)
}

func TestParse_UnknownInstructionWarns(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nFROBNICATE foo\nRUN echo hi\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.Len(t, result.Stages, 1)

	require.Len(t, result.Warnings, 1)
	require.Equal(t, "UnknownInstruction", result.Warnings[0].Kind)

	unknown := findInstr(t, result.Stages[0], KindUnknown)
	require.Equal(t, "FROBNICATE", unknown.Name)

	run := findInstr(t, result.Stages[0], KindRun)
	require.Equal(t, []string{"echo hi"}, run.Run.Words)
}

func TestParse_UnknownInstructionSuggestsClosestMatch(t *testing.T) {
	t.Parallel()
	content := "FROM alpine:3.18\nFORM foo\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Contains(t, result.Warnings[0].Message, `did you mean "FROM"?`)
}

func TestParse_SyntaxDirectiveTypoWarns(t *testing.T) {
	t.Parallel()
	content := "# syntax=dockerr/dockerfile:1\nFROM alpine:3.18\n"

	result, err := Parse(strings.NewReader(content), "Dockerfile")
	require.NoError(t, err)
	require.NotEmpty(t, result.Warnings)
	require.Equal(t, "SyntaxDirectiveTypo", result.Warnings[0].Kind)
}

func findInstr(t *testing.T, s Stage, kind Kind) Instruction {
	t.Helper()
	for _, instr := range s.Instructions {
		if instr.Kind == kind {
			return instr
		}
	}
	t.Fatalf("no instruction of kind %v found", kind)
	return Instruction{}
}
