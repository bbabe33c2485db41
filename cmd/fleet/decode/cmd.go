package decode

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/desmo/fleet/cmd/fleet/subcmd"
	"github.com/desmo/fleet/helpers/cli"
	"github.com/desmo/fleet/state"
	"github.com/desmo/fleet/tele"
	"github.com/juju/errors"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Usage: "decode hex telemetry frames from terminal or stdin", NoConfig: true, Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	exec := func(line string) {
		s, err := Decode(line)
		if err != nil {
			g.Log.Errorf("%v", err)
			return
		}
		g.Log.Info(s)
	}
	cli.MainLoop(modName, exec, newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest { return nil }
}

// Decode parses hex frame, whitespace is ignored.
func Decode(line string) (string, error) {
	line = strings.Join(strings.Fields(line), "")
	// mosquitto_sub wrongly strips leading zero in hex format
	if len(line)%2 == 1 {
		line = "0" + line
	}
	b, err := hex.DecodeString(line)
	if err != nil {
		return "", errors.Annotate(err, "hex decode")
	}
	var f tele.Frame
	if err := f.Unmarshal(b); err != nil {
		return "", errors.Annotate(err, "frame")
	}
	return f.String() + " time=" + f.Time().UTC().Format("2006-01-02T15:04:05.000Z"), nil
}
