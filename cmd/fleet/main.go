package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desmo/fleet/cmd/fleet/decode"
	"github.com/desmo/fleet/cmd/fleet/ingest"
	"github.com/desmo/fleet/cmd/fleet/subcmd"
	"github.com/desmo/fleet/cmd/fleet/vehicle"
	"github.com/desmo/fleet/log2"
	"github.com/desmo/fleet/state"
	"github.com/juju/errors"
)

var log = log2.NewStderr(log2.LDebug)

var modules = []subcmd.Mod{
	vehicle.Mod,
	ingest.Mod,
	decode.Mod,
}

func main() {
	flagset := flag.NewFlagSet("fleet", flag.ContinueOnError)
	configPath := flagset.String("config", "fleet.hcl", "")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: fleet [option] command [command options]\n\nOptions:\n")
		flagset.PrintDefaults()
		fmt.Fprintf(flagset.Output(), "\nCommands:\n")
		for _, m := range modules {
			fmt.Fprintf(flagset.Output(), "  %-8s %s\n", m.Name, m.Usage)
		}
	}
	if err := flagset.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	mod, err := subcmd.Parse(flagset.Arg(0), modules)
	if err != nil {
		flagset.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	ctx, g := state.NewContext(log)
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		g.Alive.Stop()
	}()

	var config *state.Config
	if !mod.NoConfig {
		config = state.MustReadConfig(log, state.NewOsFullReader(), *configPath)
		log.Debugf("config=%+v", config)
	}

	if err := mod.Main(ctx, config, flagset.Args()[1:]); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
