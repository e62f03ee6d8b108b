package responses

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuiltInCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	require.NoError(t, c.Require(ContextPools...))
	require.NoError(t, c.Require(PoolEightBall, PoolVague, PoolWhispers))
	assert.NotEmpty(t, c.Activities())

	for _, name := range []string{"opinion", "existential", "meta_lore"} {
		pool, ok := c.Pool(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, pool.Templates(), "%s should carry topic templates", name)
	}

	for _, name := range c.Names() {
		pool, _ := c.Pool(name)
		assert.Equal(t, name, pool.Name)
		for _, cand := range pool.Candidates {
			assert.NotEmpty(t, strings.TrimSpace(cand.Text), cand.ID)
		}
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty pool", "pools:\n  greeting: []\n"},
		{"missing id", "pools:\n  greeting:\n    - text: hello\n"},
		{"missing text", "pools:\n  greeting:\n    - id: g1\n"},
		{"duplicate id", "pools:\n  greeting:\n    - id: g1\n      text: a\n    - id: g1\n      text: b\n"},
		{"bad yaml", "pools: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRequireReportsMissingPools(t *testing.T) {
	c, err := Parse([]byte("pools:\n  greeting:\n    - id: g1\n      text: hi\n"))
	require.NoError(t, err)

	err = c.Require("greeting", "escape", "vague")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escape, vague")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pools:\n  vague:\n    - id: v1\n      text: hmm\nactivities: [dreaming]\n"), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	pool, ok := c.Pool("vague")
	require.True(t, ok)
	assert.True(t, pool.Contains("v1"))
	assert.Equal(t, []string{"dreaming"}, c.Activities())

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	builtIn, err := LoadFile("")
	require.NoError(t, err)
	assert.NotEmpty(t, builtIn.Names())
}
