package vehicle

import (
	"context"
	"flag"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/desmo/fleet/cmd/fleet/subcmd"
	"github.com/desmo/fleet/internal/tele"
	"github.com/desmo/fleet/internal/vehicle"
	"github.com/desmo/fleet/state"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "vehicle", Usage: "[-id N] simulate vehicle and stream telemetry to broker", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	flagset := flag.NewFlagSet("vehicle", flag.ContinueOnError)
	flagID := flagset.Int("id", 0, "vehicle id, overrides config")
	flagSeed := flagset.Int64("seed", 0, "driver random seed, 0 = time based")
	if err := flagset.Parse(args); err != nil {
		return errors.Annotate(err, "vehicle flags")
	}
	if *flagID != 0 {
		config.Vehicle.ID = *flagID
	}

	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	id := uint16(config.Vehicle.ID)

	seed := *flagSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	car := vehicle.New(id, g.Log)
	driver := vehicle.NewDriver(seed)
	up := tele.NewUplink(g.Log, config.Uplink, id, car, driver)

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("vehicle id=%d broker=%s running", id, config.Uplink.BrokerOrDefault())
	err := up.Run(ctx)
	stat := up.Stat()
	g.Log.Infof("vehicle id=%d stopped stat=%+v", id, stat)
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}
