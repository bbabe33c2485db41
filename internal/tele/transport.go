package tele

import (
	"context"

	tele_api "github.com/desmo/fleet/tele"
	"github.com/desmo/fleet/tele/mqtt"
)

// Uplink transport contract, satisfied by *mqtt.Session:
// - Connect blocks at most network timeout, error means no link
// - Publish error means link is lost, caller reconnects
// - Tick never blocks on idle link, delivers inbound messages to OnMessage callback
// - all calls from one goroutine
type Transporter interface {
	Connect(ctx context.Context, address, clientID string) error
	Subscribe(topic string, qos mqtt.QOS) error
	Publish(topic string, payload []byte, qos mqtt.QOS) error
	Tick() error
	Disconnect()
	SetOnMessage(mqtt.MessageFunc)
}

// Simulator is the vehicle model driven by uplink loop.
type Simulator interface {
	SetThrottle(x float64)
	Tick(dt float64)
	Snapshot(f *tele_api.Frame, dt float64)
	OnCommand(cmd tele_api.Command)
}

// Driver produces throttle input for each step.
type Driver interface {
	Step() float64
}
