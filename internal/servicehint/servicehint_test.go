package servicehint

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wharflab/dgossgen/internal/shellwords"
)

func TestMatchImage_Nginx(t *testing.T) {
	t.Parallel()
	table := NewTable(nil)
	hints := table.MatchImage("nginx:1.25-alpine")
	require.Len(t, hints, 1)
	require.Equal(t, "nginx", hints[0].Name)
	require.Equal(t, "/etc/nginx/nginx.conf", hints[0].ConfigPath)
}

func TestMatchImage_NoMatch(t *testing.T) {
	t.Parallel()
	table := NewTable(nil)
	require.Empty(t, table.MatchImage("scratch"))
}

func TestMatchPackages_Postgres(t *testing.T) {
	t.Parallel()
	table := NewTable(nil)
	hints := table.MatchPackages([]string{"postgresql-client"})
	require.Len(t, hints, 1)
	require.Equal(t, "postgres", hints[0].Name)
}

func TestNewTable_PolicyExtension(t *testing.T) {
	t.Parallel()
	table := NewTable(map[string]Hint{
		"memcached": {Name: "memcached", Process: "memcached", ConfigPath: "/etc/memcached.conf", VersionProbe: "memcached -h"},
	})
	hints := table.MatchImage("memcached:1.6")
	require.Len(t, hints, 1)
	require.Equal(t, "memcached", hints[0].Name)
}

func TestExtractPackages_AptGetInstall(t *testing.T) {
	t.Parallel()
	words := []string{"apt-get update && apt-get install -y nginx curl"}
	packages := ExtractPackages(words, shellwords.VariantBash)
	require.Equal(t, []string{"nginx", "curl"}, packages)
}

func TestExtractPackages_ApkAdd(t *testing.T) {
	t.Parallel()
	words := []string{"apk add --no-cache redis"}
	packages := ExtractPackages(words, shellwords.VariantPOSIX)
	require.Equal(t, []string{"redis"}, packages)
}

func TestExtractPackages_QuotedArgumentSurvivesASTParse(t *testing.T) {
	t.Parallel()
	words := []string{`apt-get install -y "nginx" 'curl'`}
	packages := ExtractPackages(words, shellwords.VariantBash)
	require.Equal(t, []string{"nginx", "curl"}, packages)
}

func TestExtractPackages_FullPathCommandName(t *testing.T) {
	t.Parallel()
	words := []string{"/usr/bin/apt-get install -y redis"}
	packages := ExtractPackages(words, shellwords.VariantBash)
	require.Equal(t, []string{"redis"}, packages)
}

func TestExtractPackages_NonPOSIXVariantUsesSimpleFallback(t *testing.T) {
	t.Parallel()
	words := []string{"apk add --no-cache redis"}
	packages := ExtractPackages(words, shellwords.VariantNonPOSIX)
	require.Equal(t, []string{"redis"}, packages)
}

func TestProvenanceReason(t *testing.T) {
	t.Parallel()
	require.Equal(t, "nginx service pattern", ProvenanceReason("nginx"))
}
