package ingest

import (
	"context"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/desmo/fleet/cmd/fleet/subcmd"
	"github.com/desmo/fleet/internal/ingest"
	"github.com/desmo/fleet/state"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var Mod = subcmd.Mod{Name: "ingest", Usage: "receive telemetry from broker, validate, store", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	ic := config.Ingest

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ingest.NewMetrics(reg)

	sinks := []ingest.Sink{ingest.LogSink{Log: g.Log}}
	if ic.Influx.URL != "" {
		g.Log.Infof("ingest influx url=%s org=%s bucket=%s", ic.Influx.URL, ic.Influx.Org, ic.Influx.Bucket)
		sinks = append(sinks, ingest.NewInfluxSink(ic.Influx.URL, ic.Influx.Token, ic.Influx.Org, ic.Influx.Bucket, nil))
	}

	ing := ingest.New(g.Log, ic, metrics, sinks...)
	if err := ing.Start(ctx); err != nil {
		_ = ing.Close()
		return errors.Annotate(err, "ingest start")
	}

	var srv *http.Server
	if ic.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", ingest.MetricsHandler(reg))
		srv = &http.Server{Addr: ic.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			g.Log.Infof("metrics listen=%s", ic.MetricsListen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				g.Error(err, "metrics listen=%s", ic.MetricsListen)
				g.Alive.Stop()
			}
		}()
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("ingest running topic=%s", ic.Topic)
	select {
	case <-ctx.Done():
	case <-g.Alive.StopChan():
	}

	g.Log.Infof("ingest stopping")
	if srv != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
	return ing.Close()
}
