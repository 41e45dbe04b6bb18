package emit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "go.yaml.in/yaml/v4"

	"github.com/wharflab/dgossgen/internal/contract"
)

func mustParse(t *testing.T, doc []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(doc, &out))
	return out
}

func TestEmit_SectionOrderIsFixed(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindUser, Key: contract.AssertionKey{Kind: contract.KindUser, Identity: "65534"}, Provenance: contract.Provenance{Reasons: []string{"USER instruction"}}, User: &contract.UserAssertion{UID: "65534"}},
		{Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:80"}, Provenance: contract.Provenance{Reasons: []string{"EXPOSE instruction"}}, Port: &contract.PortAssertion{Proto: "tcp", Port: 80, Listening: true}},
		{Kind: contract.KindFile, Key: contract.AssertionKey{Kind: contract.KindFile, Identity: "/etc/nginx/nginx.conf"}, Provenance: contract.Provenance{Reasons: []string{"nginx service pattern"}}, File: &contract.FileAssertion{Path: "/etc/nginx/nginx.conf", Exists: true}},
	}

	docs := Emit(assertions, nil, WaitPolicy{DisableWait: true})
	text := string(docs.Main)

	fileIdx := strings.Index(text, "file:")
	portIdx := strings.Index(text, "port:")
	userIdx := strings.Index(text, "user:")
	require.True(t, fileIdx >= 0 && portIdx >= 0 && userIdx >= 0)
	assert.Less(t, fileIdx, portIdx)
	assert.Less(t, portIdx, userIdx)

	parsed := mustParse(t, docs.Main)
	require.Contains(t, parsed, "file")
	require.Contains(t, parsed, "port")
	require.Contains(t, parsed, "user")
}

func TestEmit_KeysLexicographicWithinSection(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindFile, Key: contract.AssertionKey{Kind: contract.KindFile, Identity: "/b"}, File: &contract.FileAssertion{Path: "/b", Exists: true}},
		{Kind: contract.KindFile, Key: contract.AssertionKey{Kind: contract.KindFile, Identity: "/a"}, File: &contract.FileAssertion{Path: "/a", Exists: true}},
	}
	docs := Emit(assertions, nil, WaitPolicy{DisableWait: true})
	text := string(docs.Main)

	idxA := strings.Index(text, "/a:")
	idxB := strings.Index(text, "/b:")
	require.True(t, idxA >= 0 && idxB >= 0)
	assert.Less(t, idxA, idxB)
}

func TestEmit_ProvenanceCommentJoinsReasons(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:8080"},
			Confidence: contract.High,
			Provenance: contract.Provenance{Reasons: []string{"EXPOSE instruction", "observed"}},
			Port:       &contract.PortAssertion{Proto: "tcp", Port: 8080, Listening: true}},
	}
	docs := Emit(assertions, nil, WaitPolicy{DisableWait: true})
	assert.Contains(t, string(docs.Main), "# derived from EXPOSE instruction; observed")
}

func TestEmit_QuotesValuesWithWhitespaceOrReservedChars(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindCommand, Key: contract.AssertionKey{Kind: contract.KindCommand, Identity: "id--u---grep--q-65534"},
			Command: &contract.CommandAssertion{Label: "id--u---grep--q-65534", Exec: "id -u | grep -q 65534", ExpectedExit: 0, TimeoutMS: 10000}},
	}
	docs := Emit(assertions, nil, WaitPolicy{DisableWait: true})
	assert.Contains(t, string(docs.Main), `exec: "id -u | grep -q 65534"`)
}

func TestEmit_CommandLabelCollisionGetsSuffix(t *testing.T) {
	t.Parallel()
	mk := func(exec string) contract.Assertion {
		return contract.Assertion{Kind: contract.KindCommand, Key: contract.AssertionKey{Kind: contract.KindCommand, Identity: exec},
			Command: &contract.CommandAssertion{Exec: exec, ExpectedExit: 0}}
	}
	docs := Emit([]contract.Assertion{mk("nginx -v"), mk("nginx -v")}, nil, WaitPolicy{DisableWait: true})
	text := string(docs.Main)
	assert.Contains(t, text, "nginx--v:")
	assert.Contains(t, text, "nginx--v-2:")
}

func TestEmit_WaitFileProducedForSinglePort(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:8080"}, Port: &contract.PortAssertion{Proto: "tcp", Port: 8080, Listening: true}},
	}
	docs := Emit(assertions, nil, WaitPolicy{})
	require.NotNil(t, docs.Wait)
	assert.Contains(t, string(docs.Wait), "tcp:8080")
}

func TestEmit_WaitFilePrefersHealthcheckOverPort(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:8080"}, Port: &contract.PortAssertion{Proto: "tcp", Port: 8080, Listening: true}},
	}
	hc := &contract.CommandAssertion{Label: "healthcheck", Exec: "curl -f http://localhost/", ExpectedExit: 0}
	docs := Emit(assertions, hc, WaitPolicy{})
	require.NotNil(t, docs.Wait)
	text := string(docs.Wait)
	assert.Contains(t, text, "command:")
	assert.NotContains(t, text, "port:")
}

func TestEmit_WaitFileSuppressedWhenDisabled(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:8080"}, Port: &contract.PortAssertion{Proto: "tcp", Port: 8080, Listening: true}},
	}
	docs := Emit(assertions, nil, WaitPolicy{DisableWait: true})
	assert.Nil(t, docs.Wait)
}

func TestEmit_WaitFileForcedWithoutPortOrHealthcheck(t *testing.T) {
	t.Parallel()
	assertions := []contract.Assertion{
		{Kind: contract.KindProcess, Key: contract.AssertionKey{Kind: contract.KindProcess, Identity: "nginx"}, Process: &contract.ProcessAssertion{Name: "nginx", Running: true}},
	}
	docs := Emit(assertions, nil, WaitPolicy{ForceWait: true})
	require.NotNil(t, docs.Wait)
	assert.Contains(t, string(docs.Wait), "process:")
}
