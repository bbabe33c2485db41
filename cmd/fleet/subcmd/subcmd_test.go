package subcmd

import (
	"context"
	"testing"

	"github.com/desmo/fleet/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *state.Config, []string) error { return nil }
	mods := []Mod{
		{Name: "vehicle", Main: noop},
		{Name: "ingest", Main: noop},
	}

	m, err := Parse("ingest", mods)
	require.NoError(t, err)
	assert.Equal(t, "ingest", m.Name)
	assert.Equal(t, &mods[1], m)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("fly", mods)
	assert.EqualError(t, err, "unknown command='fly'")

	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{Main: noop}}) })
}
