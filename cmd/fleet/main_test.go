package main

import (
	"testing"

	"github.com/desmo/fleet/cmd/fleet/subcmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModules(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{}, len(modules))
	for _, m := range modules {
		_, dup := seen[m.Name]
		assert.False(t, dup, "duplicate module=%s", m.Name)
		seen[m.Name] = struct{}{}
		found, err := subcmd.Parse(m.Name, modules)
		require.NoError(t, err)
		assert.Equal(t, m.Name, found.Name)
		assert.NotNil(t, found.Main)
	}
	for _, name := range []string{"vehicle", "ingest", "decode"} {
		_, ok := seen[name]
		assert.True(t, ok, "missing module=%s", name)
	}
}
