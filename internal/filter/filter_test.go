package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wharflab/dgossgen/internal/contract"
)

func buildRCM(t *testing.T) *contract.RuntimeContractModel {
	t.Helper()
	m := contract.NewRCM()
	m.Upsert(contract.Assertion{
		Kind: contract.KindFile, Key: contract.AssertionKey{Kind: contract.KindFile, Identity: "/etc/nginx/nginx.conf"},
		Confidence: contract.Medium, File: &contract.FileAssertion{Path: "/etc/nginx/nginx.conf", Exists: true, Mode: "0644", Owner: "root"},
	})
	m.Upsert(contract.Assertion{
		Kind: contract.KindFile, Key: contract.AssertionKey{Kind: contract.KindFile, Identity: "/tmp/build-cache"},
		Confidence: contract.Low, File: &contract.FileAssertion{Path: "/tmp/build-cache", Exists: true},
	})
	m.Upsert(contract.Assertion{
		Kind: contract.KindPort, Key: contract.AssertionKey{Kind: contract.KindPort, Identity: "tcp:80"},
		Confidence: contract.Medium, Port: &contract.PortAssertion{Proto: "tcp", Port: 80, Listening: true},
	})
	m.Upsert(contract.Assertion{
		Kind: contract.KindProcess, Key: contract.AssertionKey{Kind: contract.KindProcess, Identity: "nginx"},
		Confidence: contract.Low, Process: &contract.ProcessAssertion{Name: "nginx", Running: true},
	})
	return m
}

func TestApply_DropsBelowMinConfidence(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	profile := contract.Profile{MinConfidence: contract.Medium, ProcessMinConfidence: contract.Low}
	policy := contract.DefaultPolicy()

	out := Apply(rcm, profile, policy)
	for _, a := range out {
		assert.NotEqual(t, "/tmp/build-cache", identityOf(a))
	}
}

func TestApply_DropsIgnoredPathPrefix(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	profile := contract.Profile{MinConfidence: contract.Low, ProcessMinConfidence: contract.Low}
	policy := contract.DefaultPolicy()
	policy.IgnorePaths = []string{"/etc/nginx"}

	out := Apply(rcm, profile, policy)
	for _, a := range out {
		if a.Kind == contract.KindFile {
			assert.NotEqual(t, "/etc/nginx/nginx.conf", a.File.Path)
		}
	}
}

func TestApply_DropsOffCategory(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	profile := contract.Profile{MinConfidence: contract.Low, ProcessMinConfidence: contract.Low}
	policy := contract.DefaultPolicy()
	policy.AssertPorts = contract.ModeOff

	out := Apply(rcm, profile, policy)
	for _, a := range out {
		assert.NotEqual(t, contract.KindPort, a.Kind)
	}
}

func TestApply_StripsFileModesWhenProfileDisablesThem(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	profile := contract.Profile{MinConfidence: contract.Low, EmitFileModes: false, ProcessMinConfidence: contract.Low}
	policy := contract.DefaultPolicy()

	out := Apply(rcm, profile, policy)
	found := false
	for _, a := range out {
		if a.Kind == contract.KindFile && a.File.Path == "/etc/nginx/nginx.conf" {
			found = true
			assert.Empty(t, a.File.Mode)
			assert.Empty(t, a.File.Owner)
		}
	}
	require.True(t, found)
}

func TestApply_KeepsFileModesUnderStrictProfile(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	out := Apply(rcm, contract.StrictProfile, contract.DefaultPolicy())

	found := false
	for _, a := range out {
		if a.Kind == contract.KindFile && a.File.Path == "/etc/nginx/nginx.conf" {
			found = true
			assert.Equal(t, "0644", a.File.Mode)
		}
	}
	require.True(t, found)
}

func TestApply_ProcessMinConfidenceAppliesOnlyToProcesses(t *testing.T) {
	t.Parallel()
	rcm := buildRCM(t)
	profile := contract.Profile{MinConfidence: contract.Low, ProcessMinConfidence: contract.Medium}
	out := Apply(rcm, profile, contract.DefaultPolicy())

	for _, a := range out {
		assert.NotEqual(t, contract.KindProcess, a.Kind)
	}
}

func identityOf(a contract.Assertion) string {
	return a.Key.Identity
}
