package mqtt

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/desmo/fleet/helpers"
	"github.com/desmo/fleet/helpers/atomic_clock"
	"github.com/desmo/fleet/log2"
	"github.com/juju/errors"
)

const (
	DefaultKeepaliveSec   = 20
	DefaultPingInterval   = 15 * time.Second
	DefaultNetworkTimeout = 2 * time.Second
	DefaultReadLimit      = 256 << 10

	// Read deadline for non-blocking inbound poll.
	// Must be in future, expired deadline fails read without looking at socket.
	pollTimeout = time.Millisecond
)

type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	}
	return fmt.Sprintf("state=%d", s)
}

// MessageFunc receives inbound PUBLISH synchronously from Tick.
type MessageFunc func(topic string, payload []byte)

type SessionOptions struct {
	Log            *log2.Log
	KeepaliveSec   uint16        // advertised in CONNECT
	PingInterval   time.Duration // PINGREQ after this much time without sending
	NetworkTimeout time.Duration // dial, CONNACK, PUBACK, SUBACK and each write
	ReadLimit      int           // max inbound remaining length
	OnMessage      MessageFunc
}

// Session is minimal MQTT 3.1.1 client: clean session, QoS 0/1 publish,
// SUBSCRIBE, keepalive and inbound PUBLISH dispatch.
// Not safe for concurrent use, all methods must be called from one goroutine.
type Session struct {
	opt      SessionOptions
	log      *log2.Log
	state    State
	conn     net.Conn
	r        *bufio.Reader
	lastID   uint16
	lastSend atomic_clock.Clock
}

func NewSession(opt SessionOptions) *Session {
	if opt.KeepaliveSec == 0 {
		opt.KeepaliveSec = DefaultKeepaliveSec
	}
	opt.PingInterval = durationDefault(opt.PingInterval, DefaultPingInterval)
	opt.NetworkTimeout = durationDefault(opt.NetworkTimeout, DefaultNetworkTimeout)
	if opt.ReadLimit <= 0 {
		opt.ReadLimit = DefaultReadLimit
	}
	return &Session{opt: opt, log: opt.Log}
}

func (s *Session) State() State { return s.state }

func (s *Session) SetOnMessage(fun MessageFunc) { s.opt.OnMessage = fun }

// Connect dials TCP, sends CONNECT and waits for CONNACK.
// Any existing connection is closed first. Packet id counter restarts at 1.
func (s *Session) Connect(ctx context.Context, address, clientID string) error {
	if s.conn != nil {
		s.closeConn()
	}
	s.state = StateConnecting
	pkt, err := ConnectPacket(clientID, s.opt.KeepaliveSec)
	if err != nil {
		s.state = StateDisconnected
		return errors.Annotate(err, "connect")
	}

	dialer := net.Dialer{Timeout: s.opt.NetworkTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		s.state = StateDisconnected
		return errors.Annotatef(err, "connect broker=%s", address)
	}
	s.conn = conn
	s.r = bufio.NewReader(conn)
	s.log.Debugf("mqtt connected tcp local=%s remote=%s", addrString(conn.LocalAddr()), addrString(conn.RemoteAddr()))

	if err = s.send(pkt); err != nil {
		return s.die(errors.Annotate(err, "connect"))
	}
	ack, err := s.recvExact(4)
	if err != nil {
		return s.die(errors.Annotate(err, "connect: expect CONNACK"))
	}
	if ack[0] != TypeConnack {
		return s.die(errors.Annotatef(ErrUnexpectedPacket, "connect: expected CONNACK received=%x", ack))
	}
	if code := ack[3]; code != ConnackAccepted {
		return s.die(errors.Annotatef(ErrConnectionRefused, "code=%d (%s)", code, ConnackCodeString(code)))
	}
	s.lastID = 0
	s.state = StateConnected
	return nil
}

// Subscribe sends SUBSCRIBE and waits for SUBACK.
// Bad response fails the call but leaves the session connected.
func (s *Session) Subscribe(topic string, qos QOS) error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	pkt, err := SubscribePacket(s.nextID(), topic, qos)
	if err != nil {
		return errors.Annotate(err, "subscribe")
	}
	if err = s.send(pkt); err != nil {
		return s.die(errors.Annotate(err, "subscribe"))
	}
	header, body, err := s.readPacket()
	if err != nil {
		return errors.Annotatef(err, "subscribe topic=%s: expect SUBACK", topic)
	}
	if header&typeMask != TypeSuback {
		return errors.Annotatef(ErrUnexpectedPacket, "subscribe topic=%s: expected SUBACK received %s", topic, PacketTypeString(header))
	}
	if len(body) >= 3 && body[2] == 0x80 {
		s.log.Errorf("mqtt subscribe topic=%s rejected by broker", topic)
	}
	return nil
}

// Publish sends PUBLISH. With QoS 1 it waits for the matching PUBACK,
// any other response forces disconnect.
func (s *Session) Publish(topic string, payload []byte, qos QOS) error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	if qos > QOS1 {
		return errors.NotSupportedf("publish qos=%d", qos)
	}
	var id uint16
	if qos > QOS0 {
		id = s.nextID()
	}
	pkt, err := PublishPacket(topic, payload, qos, id)
	if err != nil {
		return errors.Annotate(err, "publish")
	}
	if err = s.send(pkt); err != nil {
		return s.die(errors.Annotate(err, "publish"))
	}
	if qos == QOS0 {
		return nil
	}

	ack, err := s.recvExact(4)
	if err != nil {
		return s.die(errors.Annotatef(err, "publish id=%d: expect PUBACK", id))
	}
	if ack[0] != TypePuback {
		return s.die(errors.Annotatef(ErrUnexpectedPacket, "publish id=%d: expected PUBACK received=%x", id, ack))
	}
	if ackID := binary.BigEndian.Uint16(ack[2:]); ackID != id {
		return s.die(errors.Annotatef(ErrPacketIDMismatch, "publish id=%d PUBACK id=%d", id, ackID))
	}
	return nil
}

// Tick must be called periodically. It never blocks on idle connection.
// Dispatches inbound packets already available and sends PINGREQ when idle.
// Error means session was forced to disconnect.
func (s *Session) Tick() error {
	if s.state != StateConnected {
		return ErrNotConnected
	}
	for {
		ok, err := s.available()
		if err != nil {
			return s.die(errors.Annotate(err, "tick"))
		}
		if !ok {
			break
		}
		header, body, err := s.readPacket()
		if err != nil {
			return s.die(errors.Annotate(err, "tick"))
		}
		if err = s.dispatch(header, body); err != nil {
			return s.die(errors.Annotate(err, "tick"))
		}
	}

	if atomic_clock.Since(&s.lastSend) >= s.opt.PingInterval {
		if err := s.send(pingreqPacket); err != nil {
			return s.die(errors.Annotate(err, "keepalive"))
		}
	}
	return nil
}

// Disconnect sends DISCONNECT best effort and closes socket. Safe to call repeatedly.
func (s *Session) Disconnect() {
	if s.conn == nil {
		s.state = StateDisconnected
		return
	}
	if s.state == StateConnected {
		s.state = StateDisconnecting
		if err := s.send(disconnectPacket); err != nil {
			s.log.Debugf("mqtt disconnect send err=%v", err)
		}
	}
	s.closeConn()
}

func (s *Session) dispatch(header byte, body []byte) error {
	switch header & typeMask {
	case TypePublish:
		return s.onPublish(header, body)
	case TypePingresp:
		s.log.Debugf("mqtt PINGRESP")
	default:
		s.log.Debugf("mqtt ignore inbound %s len=%d", PacketTypeString(header), len(body))
	}
	return nil
}

// Inconsistent topic length or missing packet id are dropped without callback.
func (s *Session) onPublish(header byte, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	topic, rest, ok := DecodeString(body)
	if !ok {
		s.log.Debugf("mqtt drop PUBLISH body=%x", body)
		return nil
	}
	qos := packetQOS(header)
	var id uint16
	if qos != QOS0 {
		if len(rest) < 2 {
			s.log.Debugf("mqtt drop PUBLISH qos=%d without id", qos)
			return nil
		}
		id = binary.BigEndian.Uint16(rest)
		rest = rest[2:]
	}
	s.log.Debugf("mqtt PUBLISH topic=%s qos=%d id=%d payload=%x", topic, qos, id, rest)
	if s.opt.OnMessage != nil {
		s.opt.OnMessage(topic, rest)
	}
	if qos == QOS1 {
		return s.send(PubackPacket(id))
	}
	return nil
}

// nextID returns packet identifier in 1..65535, 0 is skipped on wrap.
func (s *Session) nextID() uint16 {
	s.lastID++
	if s.lastID == 0 {
		s.lastID = 1
	}
	return s.lastID
}

// available reports whether at least one byte can be read without blocking.
func (s *Session) available() (bool, error) {
	if s.r.Buffered() > 0 {
		return true, nil
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(pollTimeout)); err != nil {
		return false, errors.Annotate(err, "SetReadDeadline")
	}
	if _, err := s.r.Peek(1); err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Session) send(b []byte) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.opt.NetworkTimeout)); err != nil {
		return errors.Annotate(err, "SetWriteDeadline")
	}
	if err := helpers.WriteAll(s.conn, b); err != nil {
		return errors.Annotatef(err, "send %s", PacketTypeString(b[0]))
	}
	s.lastSend.SetNow()
	s.log.Debugf("mqtt sent %s", PacketString(b))
	return nil
}

func (s *Session) recvExact(n int) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opt.NetworkTimeout)); err != nil {
		return nil, errors.Annotate(err, "SetReadDeadline")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readPacket reads fixed header, remaining length and body within NetworkTimeout.
func (s *Session) readPacket() (byte, []byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opt.NetworkTimeout)); err != nil {
		return 0, nil, errors.Annotate(err, "SetReadDeadline")
	}
	header, err := s.r.ReadByte()
	if err != nil {
		return 0, nil, errors.Annotate(err, "read header")
	}
	length, err := DecodeLength(s.r)
	if err != nil {
		return header, nil, errors.Annotatef(err, "read %s", PacketTypeString(header))
	}
	if length > s.opt.ReadLimit {
		return header, nil, errors.Annotatef(ErrPacketTooLarge, "%s length=%d limit=%d", PacketTypeString(header), length, s.opt.ReadLimit)
	}
	body := make([]byte, length)
	if _, err = io.ReadFull(s.r, body); err != nil {
		return header, nil, errors.Annotatef(err, "read %s body", PacketTypeString(header))
	}
	return header, body, nil
}

// die closes connection after protocol or I/O failure and passes err through.
func (s *Session) die(err error) error {
	switch {
	case errors.Cause(err) == io.EOF, isClosedConn(errors.Cause(err)):
		s.log.Infof("mqtt connection lost: %v", err)
	default:
		s.log.Errorf("mqtt %v", err)
	}
	s.closeConn()
	return err
}

func (s *Session) closeConn() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !isClosedConn(err) {
			s.log.Debugf("mqtt close err=%v", err)
		}
	}
	s.conn = nil
	s.r = nil
	s.state = StateDisconnected
}
