package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunLines(t *testing.T) {
	t.Parallel()
	lines := []string{}
	RunLines(strings.NewReader("d350\n\n  00aa  \r\nff"), func(line string) { lines = append(lines, line) })
	assert.Equal(t, []string{"d350", "00aa", "ff"}, lines)
}
