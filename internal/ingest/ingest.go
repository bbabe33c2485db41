package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/desmo/fleet/helpers"
	"github.com/desmo/fleet/log2"
	"github.com/desmo/fleet/tele"
	tele_config "github.com/desmo/fleet/tele/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
)

const (
	DisconnectQuiesceMs = 250
	subscribeQOS        = 1
	connectTimeout      = 10 * time.Second
)

// denote value type in spool bytes form
// qFrame layout: kind:0:1 topic-vehicle:1:2 sinks-done:3:1 payload:4
const (
	qFrame byte = 1

	qFrameHeader = 4
	maxSinks     = 8 // sinks-done bitmask
)

var bindPahoLogOnce sync.Once

// Ingestor contract:
// - message handler only pushes to durable spool, never blocks on sinks
// - single worker validates frames in spool order
// - invalid frames are counted and discarded, never reach sinks
// - sink failure keeps frame in spool for retry, sinks that already
//   accepted it are recorded in spool item and skipped on retry
// - delivery to each sink is at least once, crash between sink write and
//   spool update repeats that write
type Ingestor struct { //nolint:maligned
	config  tele_config.IngestConfig
	log     *log2.Log
	alive   *alive.Alive
	metrics *Metrics
	sinks   []Sink
	retry   helpers.Backoff

	clientID  string
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	q         *spq.Queue
}

func New(log *log2.Log, config tele_config.IngestConfig, metrics *Metrics, sinks ...Sink) *Ingestor {
	config.Defaults()
	if len(sinks) > maxSinks {
		panic(fmt.Sprintf("code error ingest sinks=%d max=%d", len(sinks), maxSinks))
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	clientID := config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("go_ingestor_%d", rand.Intn(10000))
	}
	return &Ingestor{
		config:    config,
		log:       log,
		alive:     alive.NewAlive(),
		metrics:   metrics,
		sinks:     sinks,
		retry:     helpers.Backoff{Min: 100 * time.Millisecond, Max: 10 * time.Second, K: 2},
		clientID:  clientID,
		newClient: mqtt.NewClient,
	}
}

func (self *Ingestor) Metrics() *Metrics { return self.metrics }

// Start opens spool, starts worker and connects to broker.
func (self *Ingestor) Start(ctx context.Context) error {
	bindPahoLogOnce.Do(func() {
		mqttLog := self.log.Clone(log2.LInfo)
		mqtt.ERROR = mqttLog
		mqtt.CRITICAL = mqttLog
		mqtt.WARN = mqttLog
		if self.config.MqttLogDebug {
			mqttLog.SetLevel(log2.LDebug)
			mqtt.DEBUG = mqttLog
		}
	})

	spoolPath := self.config.SpoolPath
	if spoolPath == "" {
		spoolPath = spq.OnlyForTesting
		self.log.Infof("ingest spool in memory, frames are lost on restart")
	}
	var err error
	self.q, err = spq.Open(spoolPath)
	if err != nil {
		return errors.Annotatef(err, "ingest spool path=%s", self.config.SpoolPath)
	}
	if !self.alive.Add(1) {
		return errors.Errorf("ingest already stopped")
	}
	go self.qworker(ctx)

	opts := mqtt.NewClientOptions().
		AddBroker(self.config.BrokerURL).
		SetClientID(self.clientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetDefaultPublishHandler(self.onMessage).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(self.onConnectionLost)
	self.client = self.newClient(opts)
	self.log.Infof("ingest connecting broker=%s client=%s", self.config.BrokerURL, self.clientID)
	token := self.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.Timeoutf("ingest connect broker=%s", self.config.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return errors.Annotatef(err, "ingest connect broker=%s", self.config.BrokerURL)
	}
	return nil
}

// Close disconnects from broker, stops worker, closes spool and flushes sinks.
func (self *Ingestor) Close() error {
	if self.client != nil {
		self.client.Disconnect(DisconnectQuiesceMs)
	}
	self.alive.Stop()
	errs := make([]error, 0, len(self.sinks)+1)
	if self.q != nil {
		if err := self.q.Close(); err != nil {
			errs = append(errs, errors.Annotate(err, "spool close"))
		}
	}
	self.alive.Wait()
	for _, s := range self.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return helpers.FoldErrors(errs)
}

func (self *Ingestor) onConnect(c mqtt.Client) {
	self.log.Infof("ingest connected broker, subscribe topic=%s", self.config.Topic)
	if token := c.Subscribe(self.config.Topic, subscribeQOS, self.onMessage); token.Wait() && token.Error() != nil {
		self.log.Errorf("ingest subscribe topic=%s err=%v", self.config.Topic, token.Error())
	}
}

func (self *Ingestor) onConnectionLost(c mqtt.Client, err error) {
	self.log.Errorf("ingest connection lost: %v", err)
}

func (self *Ingestor) onMessage(c mqtt.Client, msg mqtt.Message) {
	self.metrics.Received.Inc()
	payload := msg.Payload()
	// zero when topic does not carry vehicle id
	topicVehicle, _ := tele.ParseTopicVehicle(msg.Topic())
	b := make([]byte, 0, qFrameHeader+len(payload))
	b = append(b, qFrame, byte(topicVehicle>>8), byte(topicVehicle), 0)
	b = append(b, payload...)
	if err := self.q.Push(b); err != nil {
		self.metrics.Dropped.Inc()
		self.log.Errorf("ingest spool push topic=%s err=%v", msg.Topic(), err)
		return
	}
	msg.Ack()
}

func (self *Ingestor) qworker(ctx context.Context) {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			done, retry := self.qhandle(ctx, b)
			switch {
			case done:
				self.retry.Reset()
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("ingest spool Delete b=%x err=%v", b, err)
				}
			case retry != nil:
				// progress recorded, push updated item before dropping old one
				if err = self.q.Push(retry); err != nil {
					self.log.Errorf("ingest spool Push b=%x err=%v", retry, err)
				} else if err = self.q.Delete(box); err != nil {
					self.log.Errorf("ingest spool Delete b=%x err=%v", b, err)
				}
			default:
				if err = self.q.DeletePush(box); err != nil {
					self.log.Errorf("ingest spool DeletePush b=%x err=%v", b, err)
				}
			}
			if !done {
				if !self.sleep(self.retry.DelayAfter(false)) {
					return
				}
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL ingest spool closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL ingest spool err=%v", err)
			if !self.sleep(self.retry.DelayAfter(false)) {
				return
			}
		}
	}
}

// sleep returns false when stopped.
func (self *Ingestor) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-self.alive.StopChan():
		return false
	}
}

// qhandle returns done=true when item should be deleted from spool.
// Otherwise non-nil retry is the item with updated progress to put back in spool.
func (self *Ingestor) qhandle(ctx context.Context, b []byte) (done bool, retry []byte) {
	if len(b) == 0 {
		self.log.Errorf("ingest spool peek=empty")
		return true, nil
	}
	switch b[0] {
	case qFrame:
		if len(b) < qFrameHeader {
			self.log.Errorf("ingest spool frame item too short b=%x", b)
			return true, nil
		}
		topicVehicle := uint16(b[1])<<8 | uint16(b[2])
		sinksDone := b[3]
		newDone := self.handleFrame(ctx, topicVehicle, sinksDone, b[qFrameHeader:])
		if newDone == self.allSinks() {
			return true, nil
		}
		if newDone == sinksDone {
			return false, nil
		}
		retry = append([]byte(nil), b...)
		retry[3] = newDone
		return false, retry
	default:
		self.log.Errorf("ingest spool unknown kind=%d", b[0])
		return true, nil
	}
}

func (self *Ingestor) allSinks() byte { return byte(1<<uint(len(self.sinks)) - 1) }

// handleFrame writes frame to sinks not yet marked in sinksDone and returns updated mask.
// Invalid frame is counted and reported as done for all sinks.
func (self *Ingestor) handleFrame(ctx context.Context, topicVehicle uint16, sinksDone byte, payload []byte) byte {
	var f tele.Frame
	if err := f.Unmarshal(payload); err != nil {
		reason := RejectReason(err)
		self.metrics.Rejected.WithLabelValues(reason).Inc()
		self.log.Warnf("ingest drop frame reason=%s err=%v", reason, err)
		return self.allSinks()
	}
	if topicVehicle != 0 && topicVehicle != f.VehicleID {
		self.log.Warnf("ingest frame vehicle=%d published to topic of vehicle=%d", f.VehicleID, topicVehicle)
	}
	for i, s := range self.sinks {
		bit := byte(1) << uint(i)
		if sinksDone&bit != 0 {
			continue
		}
		if err := s.Write(ctx, &f); err != nil {
			self.metrics.SinkErrors.Inc()
			self.log.Errorf("ingest sink=%d vehicle=%d seq=%d err=%v", i, f.VehicleID, f.Seq, err)
			return sinksDone
		}
		sinksDone |= bit
	}
	self.metrics.Accepted.Inc()
	if f.Flags != 0 {
		self.metrics.Alerts.Inc()
	}
	return sinksDone
}

func RejectReason(err error) string {
	switch errors.Cause(err) {
	case tele.ErrFrameSize:
		return ReasonSize
	case tele.ErrFrameMagic:
		return ReasonMagic
	case tele.ErrChecksum:
		return ReasonChecksum
	}
	return "other"
}
