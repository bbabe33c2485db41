package tele

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/desmo/fleet/helpers"
	"github.com/desmo/fleet/log2"
	tele_api "github.com/desmo/fleet/tele"
	tele_config "github.com/desmo/fleet/tele/config"
	"github.com/desmo/fleet/tele/mqtt"
	"github.com/juju/errors"
)

const statusEvery = 10

type Stat struct {
	Connects      uint32
	ConnectErrors uint32
	FramesSent    uint32
	LinkLost      uint32
	Commands      uint32
}

// Uplink contract:
// - Run owns transport and simulator until ctx is done
// - connect failure is retried forever with fixed delay
// - publish or tick failure drops the link and reconnects immediately
// - frame sequence is process wide, continues across reconnects
type Uplink struct { //nolint:maligned
	config    tele_config.UplinkConfig
	log       *log2.Log
	transport Transporter
	sim       Simulator
	driver    Driver
	vehicleID uint16
	now       func() time.Time

	broker         string
	clientID       string
	qos            mqtt.QOS
	topicTelemetry string
	topicCommand   string

	frame tele_api.Frame
	seq   uint32
	stat  Stat
}

func NewUplink(log *log2.Log, config tele_config.UplinkConfig, vehicleID uint16, sim Simulator, driver Driver) *Uplink {
	mqttLog := log.Clone(log2.LInfo)
	if config.LogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	session := mqtt.NewSession(mqtt.SessionOptions{
		Log:            mqttLog,
		KeepaliveSec:   uint16(config.Keepalive() / time.Second),
		PingInterval:   config.PingInterval(),
		NetworkTimeout: config.NetworkTimeout(),
	})
	return NewWithTransporter(log, config, vehicleID, sim, driver, session)
}

func NewWithTransporter(log *log2.Log, config tele_config.UplinkConfig, vehicleID uint16, sim Simulator, driver Driver, trans Transporter) *Uplink {
	self := &Uplink{
		config:    config,
		log:       log,
		transport: trans,
		sim:       sim,
		driver:    driver,
		vehicleID: vehicleID,
		now:       time.Now,

		broker:         config.BrokerOrDefault(),
		clientID:       config.ClientIDFor(vehicleID),
		qos:            mqtt.QOS(config.QOSOrDefault()),
		topicTelemetry: tele_api.TopicTelemetry(vehicleID),
		topicCommand:   tele_api.TopicCommand(vehicleID),
	}
	trans.SetOnMessage(self.onMessage)
	return self
}

func (self *Uplink) Stat() Stat {
	return Stat{
		Connects:      atomic.LoadUint32(&self.stat.Connects),
		ConnectErrors: atomic.LoadUint32(&self.stat.ConnectErrors),
		FramesSent:    atomic.LoadUint32(&self.stat.FramesSent),
		LinkLost:      atomic.LoadUint32(&self.stat.LinkLost),
		Commands:      atomic.LoadUint32(&self.stat.Commands),
	}
}

// Run returns ctx.Err() after ctx is done, transport disconnected.
func (self *Uplink) Run(ctx context.Context) error {
	defer self.transport.Disconnect()
	backoff := helpers.NewFixedBackoff(self.config.ReconnectDelay())
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := self.transport.Connect(ctx, self.broker, self.clientID); err != nil {
			atomic.AddUint32(&self.stat.ConnectErrors, 1)
			delay := backoff.DelayAfter(false)
			self.log.Errorf("uplink connect broker=%s failed, retry in %v: %v", self.broker, delay, err)
			if err := helpers.SleepContext(ctx, delay); err != nil {
				return err
			}
			continue
		}
		backoff.Reset()
		atomic.AddUint32(&self.stat.Connects, 1)
		self.log.Infof("uplink link established broker=%s client=%s telemetry=%s", self.broker, self.clientID, self.topicTelemetry)

		if self.config.SubscribeCommandsOrDefault() {
			if err := self.transport.Subscribe(self.topicCommand, mqtt.QOS1); err != nil {
				self.log.Errorf("uplink subscribe topic=%s err=%v", self.topicCommand, err)
			}
		}

		err := self.loop(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		atomic.AddUint32(&self.stat.LinkLost, 1)
		self.log.Errorf("uplink link lost, reconnecting: %v", err)
	}
}

func (self *Uplink) loop(ctx context.Context) error {
	interval := self.config.PublishInterval()
	dt := interval.Seconds()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// drain what arrived during sleep, QoS 1 PUBACK must be next on the wire after PUBLISH
		if err := self.transport.Tick(); err != nil {
			return errors.Annotate(err, "tick")
		}
		if err := self.step(dt); err != nil {
			return err
		}
		if err := self.transport.Tick(); err != nil {
			return errors.Annotate(err, "tick")
		}
		if err := helpers.SleepContext(ctx, interval); err != nil {
			return err
		}
	}
}

// step advances simulator and publishes one frame.
func (self *Uplink) step(dt float64) error {
	self.sim.SetThrottle(self.driver.Step())
	self.sim.Tick(dt)
	f := &self.frame
	self.sim.Snapshot(f, dt)
	f.Seq = self.seq
	self.seq++
	f.Timestamp = uint64(self.now().UnixNano() / int64(time.Millisecond))
	payload := f.Marshal()

	if err := self.transport.Publish(self.topicTelemetry, payload, self.qos); err != nil {
		return errors.Annotatef(err, "publish seq=%d", f.Seq)
	}
	sent := atomic.AddUint32(&self.stat.FramesSent, 1)
	if sent%statusEvery == 0 {
		self.log.Infof("uplink tx %s", self.statusLine())
	}
	return nil
}

func (self *Uplink) statusLine() string {
	f := &self.frame
	return fmt.Sprintf("seq=%d rpm=%d speed=%d km/h gear=%d temp=%d battery=%d flags=%s",
		f.Seq, f.RPM, f.Speed, f.Gear, f.Temp, f.Battery, f.Flags.String())
}

func (self *Uplink) onMessage(topic string, payload []byte) {
	if topic != self.topicCommand {
		self.log.Debugf("uplink ignore topic=%s payload=%x", topic, payload)
		return
	}
	if len(payload) == 0 {
		self.log.Errorf("uplink command empty payload")
		return
	}
	cmd := tele_api.Command(payload[0])
	atomic.AddUint32(&self.stat.Commands, 1)
	self.log.Infof("uplink command=%s", cmd.String())
	self.sim.OnCommand(cmd)
}
