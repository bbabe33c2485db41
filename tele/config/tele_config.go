// Separate package is workaround to import cycles.
package tele_config

import (
	"time"

	"github.com/desmo/fleet/helpers"
	"github.com/desmo/fleet/tele"
)

type VehicleConfig struct {
	ID int `hcl:"id"`
}

type UplinkConfig struct { //nolint:maligned
	Broker            string `hcl:"broker"`
	ClientID          string `hcl:"client_id"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	PingIntervalSec   int    `hcl:"ping_interval_sec"`
	NetworkTimeoutMs  int    `hcl:"network_timeout_ms"`
	ReconnectDelayMs  int    `hcl:"reconnect_delay_ms"`
	PublishIntervalMs int    `hcl:"publish_interval_ms"`
	QOS               *int   `hcl:"qos"`
	SubscribeCommands *bool  `hcl:"subscribe_commands"`
	LogDebug          bool   `hcl:"log_debug"`
}

type InfluxConfig struct {
	URL    string `hcl:"url"`
	Token  string `hcl:"token"` // secret
	Org    string `hcl:"org"`
	Bucket string `hcl:"bucket"`
}

type IngestConfig struct { //nolint:maligned
	BrokerURL     string       `hcl:"broker_url"`
	Topic         string       `hcl:"topic"`
	ClientID      string       `hcl:"client_id"`
	SpoolPath     string       `hcl:"spool_path"`
	MetricsListen string       `hcl:"metrics_listen"`
	Influx        InfluxConfig `hcl:"influx"`
	MqttLogDebug  bool         `hcl:"mqtt_log_debug"`
	LogDebug      bool         `hcl:"log_debug"`
}

const (
	DefaultBroker          = "127.0.0.1:1883"
	DefaultKeepalive       = 20 * time.Second
	DefaultPingInterval    = 15 * time.Second
	DefaultNetworkTimeout  = 2000 * time.Millisecond
	DefaultReconnectDelay  = 2000 * time.Millisecond
	DefaultPublishInterval = 100 * time.Millisecond

	DefaultIngestBrokerURL = "tcp://localhost:1883"
	DefaultIngestTopic     = tele.TopicTelemetryAll
	DefaultInfluxOrg       = "DesmoTelemetry"
	DefaultInfluxBucket    = "Telemetry"
)

func (c *UplinkConfig) BrokerOrDefault() string {
	if c.Broker == "" {
		return DefaultBroker
	}
	return c.Broker
}

// ClientIDFor returns configured client id or sim_client_<vehicle>.
func (c *UplinkConfig) ClientIDFor(vehicleID uint16) string {
	if c.ClientID == "" {
		return tele.ClientID(vehicleID)
	}
	return c.ClientID
}

func (c *UplinkConfig) Keepalive() time.Duration {
	return helpers.IntSecondDefault(c.KeepaliveSec, DefaultKeepalive)
}
func (c *UplinkConfig) PingInterval() time.Duration {
	return helpers.IntSecondDefault(c.PingIntervalSec, DefaultPingInterval)
}
func (c *UplinkConfig) NetworkTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.NetworkTimeoutMs, DefaultNetworkTimeout)
}
func (c *UplinkConfig) ReconnectDelay() time.Duration {
	return helpers.IntMillisecondDefault(c.ReconnectDelayMs, DefaultReconnectDelay)
}
func (c *UplinkConfig) PublishInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.PublishIntervalMs, DefaultPublishInterval)
}

// QOSOrDefault is 1 unless set explicitly, qos=0 is a valid setting.
func (c *UplinkConfig) QOSOrDefault() int {
	if c.QOS == nil {
		return 1
	}
	return *c.QOS
}

func (c *UplinkConfig) SubscribeCommandsOrDefault() bool {
	return c.SubscribeCommands == nil || *c.SubscribeCommands
}

func (c *IngestConfig) Defaults() {
	if c.BrokerURL == "" {
		c.BrokerURL = DefaultIngestBrokerURL
	}
	if c.Topic == "" {
		c.Topic = DefaultIngestTopic
	}
	if c.Influx.Org == "" {
		c.Influx.Org = DefaultInfluxOrg
	}
	if c.Influx.Bucket == "" {
		c.Influx.Bucket = DefaultInfluxBucket
	}
}
