package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/desmo/fleet/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, "127.0.0.1:1883", c.Uplink.BrokerOrDefault())
			assert.Equal(t, "sim_client_101", c.Uplink.ClientIDFor(101))
			assert.Equal(t, 20*time.Second, c.Uplink.Keepalive())
			assert.Equal(t, 15*time.Second, c.Uplink.PingInterval())
			assert.Equal(t, 2*time.Second, c.Uplink.NetworkTimeout())
			assert.Equal(t, 2*time.Second, c.Uplink.ReconnectDelay())
			assert.Equal(t, 100*time.Millisecond, c.Uplink.PublishInterval())
			assert.Equal(t, 1, c.Uplink.QOSOrDefault())
			assert.True(t, c.Uplink.SubscribeCommandsOrDefault())
			assert.Equal(t, "tcp://localhost:1883", c.Ingest.BrokerURL)
			assert.Equal(t, "fleet/+/telemetry", c.Ingest.Topic)
			assert.Equal(t, "DesmoTelemetry", c.Ingest.Influx.Org)
			assert.Equal(t, "Telemetry", c.Ingest.Influx.Bucket)
		}, ""},

		{"uplink", `
vehicle { id = 7 }
uplink {
	broker = "10.0.0.1:1884"
	client_id = "truck7"
	publish_interval_ms = 250
	qos = 0
	subscribe_commands = false
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7, c.Vehicle.ID)
				assert.Equal(t, "10.0.0.1:1884", c.Uplink.BrokerOrDefault())
				assert.Equal(t, "truck7", c.Uplink.ClientIDFor(7))
				assert.Equal(t, 250*time.Millisecond, c.Uplink.PublishInterval())
				assert.Equal(t, 0, c.Uplink.QOSOrDefault())
				assert.False(t, c.Uplink.SubscribeCommandsOrDefault())
			}, ""},

		{"ingest", `
ingest {
	spool_path = "/var/spool/fleet"
	metrics_listen = ":9100"
	influx { url = "http://influx:8086" token = "secret" }
}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, "/var/spool/fleet", c.Ingest.SpoolPath)
				assert.Equal(t, ":9100", c.Ingest.MetricsListen)
				assert.Equal(t, "http://influx:8086", c.Ingest.Influx.URL)
				assert.Equal(t, "secret", c.Ingest.Influx.Token)
				assert.Equal(t, "DesmoTelemetry", c.Ingest.Influx.Org)
			}, ""},

		{"include-normalize", `
vehicle { id = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "vehicle-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7, c.Vehicle.ID)
			}, ""},

		{"include-overwrites", `
vehicle { id = 1 }
include "vehicle-7" {}`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7, c.Vehicle.ID)
			}, ""},

		{"error-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-vehicle-id", `vehicle { id = 70000 }`, nil, "vehicle.id=70000 not valid"},
		{"error-qos", `uplink { qos = 2 }`, nil, "uplink.qos=2 not valid"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"vehicle-7":    "vehicle{id=7}",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestGlobal(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LInfo)
	ctx, g := NewContext(log)
	assert.Equal(t, g, GetGlobal(ctx))
	assert.Equal(t, log, log2.ContextValueLogger(ctx))

	cfg := MustReadConfig(log, NewMockFullReader(map[string]string{"inline": "uplink{log_debug=true}"}), "inline")
	require.NoError(t, g.Init(ctx, cfg))
	assert.True(t, g.Log.Enabled(log2.LDebug))

	assert.Panics(t, func() { GetGlobal(context.Background()) })
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../fleet.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../fleet.hcl")
	assert.Equal(t, 101, c.Vehicle.ID)
}
